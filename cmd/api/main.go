package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voxlay/voxlay/internal/config"
	"github.com/voxlay/voxlay/internal/handler"
	"github.com/voxlay/voxlay/internal/model/personality"
	"github.com/voxlay/voxlay/internal/service/audiocache"
	"github.com/voxlay/voxlay/internal/service/audit"
	"github.com/voxlay/voxlay/internal/service/generation"
	"github.com/voxlay/voxlay/internal/service/quota"
	"github.com/voxlay/voxlay/internal/service/relay"
	"github.com/voxlay/voxlay/internal/service/synthesis"
	"github.com/voxlay/voxlay/internal/service/tier"
	"github.com/voxlay/voxlay/internal/service/understanding"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	resolver := personality.NewTableResolver(personality.Seed())

	// Replay audio cache: Redis when configured, in-memory otherwise.
	var cache audiocache.Cache
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := audiocache.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.TTL)
		if err != nil {
			log.Printf("warning: redis cache unavailable, falling back to memory: %v", err)
			cache = audiocache.NewMemoryCache(cfg.Cache.TTL)
		} else {
			cache = redisCache
			log.Println("redis replay cache initialized")
		}
	} else {
		cache = audiocache.NewMemoryCache(cfg.Cache.TTL)
	}
	defer cache.Close()

	// Synthesis adapter
	var synthOpener synthesis.Opener
	if cfg.Synthesis.Enabled {
		synthOpener = synthesis.NewClient(cfg.Synthesis, cache)
		log.Println("synthesis client initialized")
	} else {
		log.Println("ELEVENLABS_API_KEY not set, voice sessions disabled")
	}

	// Understanding adapter
	var transcriber understanding.Transcriber
	if cfg.Understanding.Enabled {
		transcriber, err = understanding.NewGeminiTranscriber(ctx, cfg.Understanding)
		if err != nil {
			log.Printf("warning: failed to initialize understanding client: %v", err)
		} else {
			log.Println("understanding client initialized")
		}
	} else {
		log.Println("GEMINI_API_KEY not set, audio input disabled")
	}

	// Audit sink
	var sink audit.Sink = audit.LogSink{}
	if cfg.Generation.AuditURL != "" {
		sink = audit.NewHTTPSink(cfg.Generation.AuditURL)
	}

	// Tier lookup enrichment
	var tiers tier.Lookup = tier.NoopLookup{}
	if cfg.Generation.TierLookupURL != "" {
		tiers = tier.NewHTTPLookup(cfg.Generation.TierLookupURL)
	}

	// Content generation: webhook endpoint first, in-process model fallback.
	var responder generation.Responder
	switch {
	case cfg.Generation.WebhookURL != "":
		responder = generation.NewWebhookRouter(cfg.Generation.WebhookURL, cfg.Generation.Timeout, tiers, sink)
		log.Println("generation webhook router initialized")
	case cfg.Generation.Ark.Enabled():
		chatModel, err := cfg.Generation.Ark.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize fallback chat model: %v", err)
		} else {
			responder, err = generation.NewModelResponder(ctx, chatModel, resolver, sink)
			if err != nil {
				log.Printf("warning: failed to initialize model responder: %v", err)
			} else {
				log.Println("in-process generation model initialized")
			}
		}
	default:
		log.Println("no generation endpoint or Ark credentials configured, voice sessions disabled")
	}

	// Usage accounting
	var accountant *quota.Accountant
	if cfg.Quota.Enabled {
		accountant = quota.NewAccountant(quota.NewHTTPReporter(cfg.Quota.URL))
		log.Println("quota reporter initialized")
	} else {
		log.Println("QUOTA_INCREMENT_URL not set, usage reporting disabled")
	}

	var orch *relay.Orchestrator
	if synthOpener != nil && transcriber != nil && responder != nil {
		orch = relay.NewOrchestrator(relay.NewRegistry(), synthOpener, transcriber, responder, resolver, accountant, relay.LogEvents{})
		log.Println("voice relay initialized")
	}

	router := handler.NewRouter(orch, resolver, cache)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("voxlay backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
