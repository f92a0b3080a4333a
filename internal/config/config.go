package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every subsystem's configuration.
type Config struct {
	Server        ServerConfig
	Synthesis     SynthesisConfig
	Understanding UnderstandingConfig
	Generation    GenerationConfig
	Quota         QuotaConfig
	Cache         CacheConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	synthesis, err := loadSynthesisConfig()
	if err != nil {
		return nil, err
	}

	understanding := loadUnderstandingConfig()

	generation, err := loadGenerationConfig()
	if err != nil {
		return nil, err
	}

	quota := loadQuotaConfig()

	cache, err := loadCacheConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:        server,
		Synthesis:     synthesis,
		Understanding: understanding,
		Generation:    generation,
		Quota:         quota,
		Cache:         cache,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// SynthesisConfig describes the speech-synthesis stream provider.
type SynthesisConfig struct {
	APIKey        string
	ModelID       string
	BaseURL       string
	Stability     float64
	Similarity    float64
	Speed         float64
	ChunkSchedule []int
	Enabled       bool
}

func loadSynthesisConfig() (SynthesisConfig, error) {
	stability, err := parseOptionalFloatEnv("SYNTHESIS_STABILITY")
	if err != nil {
		return SynthesisConfig{}, err
	}
	similarity, err := parseOptionalFloatEnv("SYNTHESIS_SIMILARITY")
	if err != nil {
		return SynthesisConfig{}, err
	}
	speed, err := parseOptionalFloatEnv("SYNTHESIS_SPEED")
	if err != nil {
		return SynthesisConfig{}, err
	}

	cfg := SynthesisConfig{
		APIKey:        strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		ModelID:       getEnvOrDefault("SYNTHESIS_MODEL_ID", "eleven_flash_v2_5"),
		BaseURL:       getEnvOrDefault("SYNTHESIS_BASE_URL", "wss://api.elevenlabs.io"),
		Stability:     0.5,
		Similarity:    0.8,
		Speed:         1.0,
		ChunkSchedule: []int{120, 160, 250, 290},
	}
	if stability != nil {
		cfg.Stability = *stability
	}
	if similarity != nil {
		cfg.Similarity = *similarity
	}
	if speed != nil {
		cfg.Speed = *speed
	}
	cfg.Enabled = cfg.APIKey != ""
	return cfg, nil
}

// UnderstandingConfig describes the transcription provider.
type UnderstandingConfig struct {
	APIKey   string
	Model    string
	MIMEType string
	Enabled  bool
}

func loadUnderstandingConfig() UnderstandingConfig {
	key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	return UnderstandingConfig{
		APIKey:   key,
		Model:    getEnvOrDefault("UNDERSTANDING_MODEL", "gemini-2.0-flash"),
		MIMEType: getEnvOrDefault("UNDERSTANDING_AUDIO_MIME", "audio/webm"),
		Enabled:  key != "",
	}
}

// GenerationConfig describes where routed text goes: the webhook endpoint,
// its enrichment lookups, and the in-process Ark fallback model.
type GenerationConfig struct {
	WebhookURL    string
	TierLookupURL string
	AuditURL      string
	Timeout       time.Duration
	Ark           ArkConfig
}

// ArkConfig describes the fallback chat model used when no webhook endpoint
// is configured.
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// Enabled reports whether the required Ark credentials are present.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates a model instance from the configuration.
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or AK/SK")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadGenerationConfig() (GenerationConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return GenerationConfig{}, err
	}
	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return GenerationConfig{}, err
	}
	timeout, err := parseOptionalIntEnv("GENERATION_TIMEOUT")
	if err != nil {
		return GenerationConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	return GenerationConfig{
		WebhookURL:    strings.TrimSpace(os.Getenv("GENERATION_WEBHOOK_URL")),
		TierLookupURL: strings.TrimSpace(os.Getenv("TIER_LOOKUP_URL")),
		AuditURL:      strings.TrimSpace(os.Getenv("AUDIT_LOG_URL")),
		Timeout:       time.Duration(timeoutSeconds) * time.Second,
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature: temperature,
			MaxTokens:   maxTokens,
		},
	}, nil
}

// QuotaConfig describes the usage-reporting collaborator.
type QuotaConfig struct {
	URL     string
	Enabled bool
}

func loadQuotaConfig() QuotaConfig {
	url := strings.TrimSpace(os.Getenv("QUOTA_INCREMENT_URL"))
	return QuotaConfig{URL: url, Enabled: url != ""}
}

// CacheConfig describes the replay audio cache.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	TTL           time.Duration
}

func loadCacheConfig() (CacheConfig, error) {
	ttl, err := parseOptionalIntEnv("AUDIO_CACHE_TTL")
	if err != nil {
		return CacheConfig{}, err
	}
	ttlSeconds := 300
	if ttl != nil {
		ttlSeconds = *ttl
	}

	return CacheConfig{
		RedisAddr:     strings.TrimSpace(os.Getenv("AUDIO_CACHE_REDIS_ADDR")),
		RedisPassword: strings.TrimSpace(os.Getenv("AUDIO_CACHE_REDIS_PASSWORD")),
		TTL:           time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
