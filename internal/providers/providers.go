// Package providers performs the literal HTTP calls against the two
// supported provider families.
//
// DESIGN: exactly two wire formats are recognized. OpenAI-compatible
// providers get a leading system message prepended to the filtered message
// list; Anthropic providers get a separate system string plus a
// user/assistant-only message list. Any other provider type fails before a
// network call. Per-provider request_defaults are merged into the outbound
// payload as raw JSON patches so unknown upstream knobs pass through
// verbatim.
package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/byokrelay/gateway/internal/config"
	"github.com/byokrelay/gateway/internal/protocol"
	"github.com/byokrelay/gateway/internal/stream"
)

// Settings is the resolved per-call provider context.
type Settings struct {
	Type            string
	BaseURL         string
	APIKey          string
	ExtraHeaders    map[string]string
	RequestDefaults map[string]any
}

// SettingsFromProvider validates a configured provider into call settings.
// A missing API key is a configuration error surfaced before any call.
func SettingsFromProvider(p *config.Provider) (Settings, error) {
	if p == nil {
		return Settings{}, fmt.Errorf("no provider selected")
	}
	label := strings.TrimSpace(p.ID)
	if label == "" {
		label = strings.TrimSpace(p.Type)
	}
	if label == "" {
		label = "unknown"
	}
	key := strings.TrimSpace(p.APIKey)
	if key == "" {
		return Settings{}, fmt.Errorf("provider(%s): api_key not configured", label)
	}
	return Settings{
		Type:            strings.TrimSpace(p.Type),
		BaseURL:         strings.TrimSpace(p.BaseURL),
		APIKey:          key,
		ExtraHeaders:    p.Headers,
		RequestDefaults: p.RequestDefaults,
	}, nil
}

func unknownTypeErr(t string) error {
	return fmt.Errorf("unknown provider type: %q", t)
}

// TextRequest is a plain system+messages call.
type TextRequest struct {
	Model    string
	System   string
	Messages []protocol.Message
	Timeout  time.Duration
}

// ChatRequest is a full chat call with tools.
type ChatRequest struct {
	Model               string
	System              string
	Messages            []protocol.Message
	ToolDefinitions     any
	ToolMeta            map[string]protocol.ToolMeta
	SupportToolUseStart bool
	Timeout             time.Duration
}

// CompleteText performs a one-shot completion and returns the assistant
// text.
func CompleteText(ctx context.Context, st Settings, req TextRequest) (string, error) {
	switch st.Type {
	case config.ProviderTypeOpenAI:
		return openAICompleteText(ctx, st, req)
	case config.ProviderTypeAnthropic:
		return anthropicCompleteText(ctx, st, req)
	default:
		return "", unknownTypeErr(st.Type)
	}
}

// StreamTextDeltas performs a streaming completion yielding raw text
// deltas in arrival order.
func StreamTextDeltas(ctx context.Context, st Settings, req TextRequest) (*stream.Stream[string], error) {
	switch st.Type {
	case config.ProviderTypeOpenAI:
		return openAIStreamTextDeltas(ctx, st, req)
	case config.ProviderTypeAnthropic:
		return anthropicStreamTextDeltas(ctx, st, req)
	default:
		return nil, unknownTypeErr(st.Type)
	}
}

// StreamChatChunks performs a streaming chat call with tools, yielding
// structured chunks in arrival order.
func StreamChatChunks(ctx context.Context, st Settings, req ChatRequest) (*stream.Stream[*protocol.ChatChunk], error) {
	switch st.Type {
	case config.ProviderTypeOpenAI:
		return openAIStreamChatChunks(ctx, st, req)
	case config.ProviderTypeAnthropic:
		return anthropicStreamChatChunks(ctx, st, req)
	default:
		return nil, unknownTypeErr(st.Type)
	}
}
