package understanding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/voxlay/voxlay/internal/config"
)

// ErrTranscriptionFailed marks provider responses with nothing meaningful,
// distinct from the benign no-speech case.
var ErrTranscriptionFailed = errors.New("transcription failed")

// transcribeInstruction is fixed for every request; the relay wants literal
// speech, not interpretation.
const transcribeInstruction = "Transcribe this audio literally. Return only the spoken words."

// Result is the outcome of one transcription. NoSpeech reports the expected
// empty-audio case, which callers treat as a no-op.
type Result struct {
	Text     string
	NoSpeech bool
}

// Transcriber submits one audio payload and returns the spoken text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (Result, error)
}

// GeminiTranscriber implements Transcriber against the Gemini API.
type GeminiTranscriber struct {
	cfg    config.UnderstandingConfig
	client *genai.Client
}

// NewGeminiTranscriber creates the provider client.
func NewGeminiTranscriber(ctx context.Context, cfg config.UnderstandingConfig) (*GeminiTranscriber, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create understanding client: %w", err)
	}

	return &GeminiTranscriber{cfg: cfg, client: client}, nil
}

// Transcribe implements Transcriber. Empty or whitespace-only provider text
// is reported as NoSpeech, not as an error.
func (t *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte) (Result, error) {
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromBytes(audio, t.cfg.MIMEType),
			genai.NewPartFromText(transcribeInstruction),
		},
	}}

	resp, err := t.client.Models.GenerateContent(ctx, t.cfg.Model, contents, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return Result{}, fmt.Errorf("%w: provider returned no candidates", ErrTranscriptionFailed)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Result{NoSpeech: true}, nil
	}

	return Result{Text: text}, nil
}
