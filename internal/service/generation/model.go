package generation

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voxlay/voxlay/internal/model/personality"
	"github.com/voxlay/voxlay/internal/service/audit"
)

// ModelResponder generates replies with an in-process chat model. Used when
// no webhook endpoint is configured; keeps the same audit contract as the
// webhook path.
type ModelResponder struct {
	chain         compose.Runnable[map[string]any, *schema.Message]
	personalities personality.Resolver
	sink          audit.Sink
}

// NewModelResponder compiles the prompt+model chain.
func NewModelResponder(ctx context.Context, chatModel model.ChatModel, personalities personality.Resolver, sink audit.Sink) (*ModelResponder, error) {
	if sink == nil {
		sink = audit.LogSink{}
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile generation chain: %w", err)
	}

	return &ModelResponder{
		chain:         runnable,
		personalities: personalities,
		sink:          sink,
	}, nil
}

// Respond implements Responder.
func (m *ModelResponder) Respond(ctx context.Context, req Request) (string, error) {
	input := map[string]any{
		"system": m.personalities.SystemPrompt(req.Personality),
		"query":  req.Content,
	}

	response, err := m.chain.Invoke(ctx, input)

	entry := audit.Entry{
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		RequestSummary: audit.Summarize(req.Content),
	}
	if err != nil {
		entry.Status = audit.StatusFailed
		entry.ResponseSummary = err.Error()
	} else {
		entry.Status = audit.StatusSuccess
		entry.ResponseSummary = audit.Summarize(response.Content)
	}
	if recordErr := m.sink.Record(ctx, entry); recordErr != nil {
		log.Printf("[generation] audit record failed: %v", recordErr)
	}

	if err != nil {
		return "", fmt.Errorf("run generation chain: %w", err)
	}

	return response.Content, nil
}
