// Package dispatch is the endpoint router: it decides, per call, whether a
// request is answered by a configured provider, stubbed, or handed back for
// official fallback, and shapes the answer into each endpoint's envelope.
//
// DESIGN: one-shot calls answer telemetry-disabled endpoints with a stub
// before any route decision, so a disabled telemetry call never reaches a
// backend; streams decide the route first and stub after. Then the
// endpoint-specific path runs. ErrNotHandled is the only "fall back to the
// official backend" signal; configuration and routing-disabled failures are
// the only errors that propagate. Reshaping is caller-supplied and applied
// per element on streams, never batched.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/byokrelay/gateway/internal/config"
	"github.com/byokrelay/gateway/internal/history"
	"github.com/byokrelay/gateway/internal/protocol"
	"github.com/byokrelay/gateway/internal/providers"
	"github.com/byokrelay/gateway/internal/router"
	"github.com/byokrelay/gateway/internal/stream"
	"github.com/byokrelay/gateway/internal/summarize"
)

// ErrNotHandled tells the caller to proxy the request to the official
// backend unchanged.
var ErrNotHandled = errors.New("not handled")

// RouteDisabledError reports an endpoint disabled by routing policy.
type RouteDisabledError struct {
	Endpoint string
}

func (e *RouteDisabledError) Error() string {
	return fmt.Sprintf("endpoint %s is disabled by routing policy", e.Endpoint)
}

// Reshape converts an internal envelope into the shape the host expects.
// A nil Reshape is identity.
type Reshape func(any) (any, error)

// One-shot endpoints answered by Handle.
var oneShotEndpoints = map[string]bool{
	"/get-models":            true,
	"/completion":            true,
	"/chat-input-completion": true,
	"/edit":                  true,
	"/chat":                  true,
	"/next_edit_loc":         true,
}

// Streaming endpoints answered by HandleStream.
var streamEndpoints = map[string]bool{
	"/chat-stream":                    true,
	"/prompt-enhancer":                true,
	"/generate-conversation-title":    true,
	"/instruction-stream":             true,
	"/smart-paste-stream":             true,
	"/generate-commit-message-stream": true,
	"/next-edit-stream":               true,
}

// OneShotEndpoints lists the endpoints answered by Handle.
func OneShotEndpoints() []string {
	return sortedKeys(oneShotEndpoints)
}

// StreamEndpoints lists the endpoints answered by HandleStream.
func StreamEndpoints() []string {
	return sortedKeys(streamEndpoints)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Handler routes endpoint calls. Provider calls are function fields so
// tests can prove which calls happen without a network.
type Handler struct {
	cfg        *config.Config
	summarizer *summarize.Summarizer

	completeText     func(ctx context.Context, st providers.Settings, req providers.TextRequest) (string, error)
	streamTextDeltas func(ctx context.Context, st providers.Settings, req providers.TextRequest) (*stream.Stream[string], error)
	streamChatChunks func(ctx context.Context, st providers.Settings, req providers.ChatRequest) (*stream.Stream[*protocol.ChatChunk], error)
	fetchModels      func(ctx context.Context, completionURL, token string, timeout time.Duration) (map[string]any, error)
}

// New builds a Handler over the given config. The summarizer may be nil.
func New(cfg *config.Config, summarizer *summarize.Summarizer) *Handler {
	return &Handler{
		cfg:              cfg,
		summarizer:       summarizer,
		completeText:     providers.CompleteText,
		streamTextDeltas: providers.StreamTextDeltas,
		streamChatChunks: providers.StreamChatChunks,
		fetchModels:      fetchOfficialModels,
	}
}

// timeout selects the effective upstream timeout: the caller's value when
// positive, else the configured default.
func (h *Handler) timeout(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return h.cfg.Timeouts.Upstream()
}

// safeReshape applies the caller's reshape, treating nil as identity and
// converting panics into errors.
func safeReshape(reshape Reshape, v any) (out any, err error) {
	if reshape == nil {
		return v, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reshape panic: %v", r)
		}
	}()
	return reshape(v)
}

// gate runs the shared route checks. A nil error with a byok route means
// the endpoint-specific path should run.
func (h *Handler) gate(endpoint string, body any) (router.Route, error) {
	route := router.Decide(h.cfg, endpoint, body)
	switch route.Mode {
	case router.ModeDisabled:
		return route, &RouteDisabledError{Endpoint: endpoint}
	case router.ModeOfficial:
		return route, ErrNotHandled
	}
	return route, nil
}

// Handle answers a one-shot endpoint. It returns ErrNotHandled for
// unrecognized endpoints and official routes; only configuration and
// routing-disabled failures are real errors.
func (h *Handler) Handle(ctx context.Context, endpoint string, body any, reshape Reshape, timeout time.Duration, upstreamToken string) (any, error) {
	if !oneShotEndpoints[endpoint] {
		return nil, ErrNotHandled
	}

	// The telemetry stub answers before routing: a disabled telemetry call
	// must never reach the official backend, whatever the route says.
	if h.cfg.Telemetry.Disabled(endpoint) {
		stub, err := safeReshape(reshape, map[string]any{})
		if err != nil {
			log.Warn().Err(err).Str("endpoint", endpoint).Msg("telemetry stub reshape failed")
			return nil, ErrNotHandled
		}
		return stub, nil
	}

	route, err := h.gate(endpoint, body)
	if err != nil {
		return nil, err
	}

	switch endpoint {
	case "/get-models":
		return h.handleGetModels(ctx, reshape, timeout, upstreamToken)
	case "/next_edit_loc":
		return h.handleNextEditLocation(body, reshape)
	case "/completion", "/chat-input-completion":
		text, err := h.oneShotText(ctx, endpoint, body, route, timeout)
		if err != nil {
			return nil, err
		}
		return safeReshapeOrErr(reshape, protocol.MakeCompletionResult(text, h.timeout(timeout).Milliseconds()))
	case "/edit":
		text, err := h.oneShotText(ctx, endpoint, body, route, timeout)
		if err != nil {
			return nil, err
		}
		return safeReshapeOrErr(reshape, protocol.MakeTextResult(text))
	case "/chat":
		return h.handleOneShotChat(ctx, body, route, reshape, timeout)
	}
	return nil, ErrNotHandled
}

// HandleStream answers a streaming endpoint with a sequence of reshaped
// elements.
func (h *Handler) HandleStream(ctx context.Context, endpoint string, body any, reshape Reshape, timeout time.Duration) (*stream.Stream[any], error) {
	if !streamEndpoints[endpoint] {
		return nil, ErrNotHandled
	}
	route, err := h.gate(endpoint, body)
	if err != nil {
		return nil, err
	}

	if h.cfg.Telemetry.Disabled(endpoint) {
		return stream.Empty[any](), nil
	}

	switch endpoint {
	case "/chat-stream":
		return h.handleChatStream(ctx, body, route, reshape, timeout)
	case "/prompt-enhancer", "/generate-conversation-title", "/generate-commit-message-stream":
		return h.textDeltaStream(ctx, endpoint, body, route, reshape, timeout, func(delta string) any {
			return protocol.MakeChatResult(delta, []protocol.OutputNode{
				{Type: protocol.ResponseNodeRawResponse, Content: delta},
			})
		})
	case "/instruction-stream", "/smart-paste-stream":
		return h.textDeltaStream(ctx, endpoint, body, route, reshape, timeout, func(delta string) any {
			return protocol.MakeTextResult(delta)
		})
	case "/next-edit-stream":
		return h.handleNextEditStream(ctx, body, route, reshape, timeout)
	}
	return nil, ErrNotHandled
}

func safeReshapeOrErr(reshape Reshape, v any) (any, error) {
	out, err := safeReshape(reshape, v)
	if err != nil {
		return nil, fmt.Errorf("reshape response: %w", err)
	}
	return out, nil
}

// oneShotText runs the endpoint's prompt through the routed provider once.
func (h *Handler) oneShotText(ctx context.Context, endpoint string, body any, route router.Route, timeout time.Duration) (string, error) {
	st, err := providers.SettingsFromProvider(route.Provider)
	if err != nil {
		return "", err
	}
	system, msgs := protocol.BuildMessagesForEndpoint(endpoint, body)
	return h.completeText(ctx, st, providers.TextRequest{
		Model:    route.Model,
		System:   system,
		Messages: msgs,
		Timeout:  h.timeout(timeout),
	})
}

// handleOneShotChat answers /chat: compacted history, assembled system
// prompt, one provider call, chat-result envelope.
func (h *Handler) handleOneShotChat(ctx context.Context, body any, route router.Route, reshape Reshape, timeout time.Duration) (any, error) {
	st, err := providers.SettingsFromProvider(route.Provider)
	if err != nil {
		return nil, err
	}
	req := protocol.NormalizeChatRequest(body)
	req.ChatHistory = history.Compact(req.ChatHistory)

	text, err := h.completeText(ctx, st, providers.TextRequest{
		Model:    route.Model,
		System:   protocol.BuildSystemPrompt(req),
		Messages: protocol.BuildConversationMessages(req),
		Timeout:  h.timeout(timeout),
	})
	if err != nil {
		return nil, err
	}
	return safeReshapeOrErr(reshape, protocol.MakeChatResult(text, nil))
}

// handleChatStream answers /chat-stream: empty requests short-circuit to a
// single end-of-turn chunk with no provider call; otherwise the history is
// (best-effort) summarized and compacted, and provider chunks are reshaped
// one by one as they arrive.
func (h *Handler) handleChatStream(ctx context.Context, body any, route router.Route, reshape Reshape, timeout time.Duration) (*stream.Stream[any], error) {
	req := protocol.NormalizeChatRequest(body)
	if req.IsEmpty() {
		empty, err := safeReshapeOrErr(reshape, protocol.MakeChatChunk("", protocol.StopReasonEndTurn))
		if err != nil {
			return nil, err
		}
		return stream.Of(empty), nil
	}

	st, err := providers.SettingsFromProvider(route.Provider)
	if err != nil {
		return nil, err
	}

	if h.summarizer != nil {
		h.summarizer.MaybeSummarizeAndCompact(ctx, route, req)
	} else {
		req.ChatHistory = history.Compact(req.ChatHistory)
	}

	src, err := h.streamChatChunks(ctx, st, providers.ChatRequest{
		Model:               route.Model,
		System:              protocol.BuildSystemPrompt(req),
		Messages:            protocol.BuildConversationMessages(req),
		ToolDefinitions:     req.ToolDefinitions,
		ToolMeta:            protocol.BuildToolMetaByName(req.ToolDefinitions),
		SupportToolUseStart: req.SupportsToolUseStart(),
		Timeout:             h.timeout(timeout),
	})
	if err != nil {
		return nil, err
	}
	return stream.Map(ctx, src, func(c *protocol.ChatChunk) (any, error) {
		return safeReshape(reshape, c)
	}), nil
}

// textDeltaStream answers the plain streaming endpoints: one translation,
// then each provider text delta wrapped in the endpoint's envelope.
func (h *Handler) textDeltaStream(ctx context.Context, endpoint string, body any, route router.Route, reshape Reshape, timeout time.Duration, envelope func(string) any) (*stream.Stream[any], error) {
	st, err := providers.SettingsFromProvider(route.Provider)
	if err != nil {
		return nil, err
	}
	system, msgs := protocol.BuildMessagesForEndpoint(endpoint, body)
	src, err := h.streamTextDeltas(ctx, st, providers.TextRequest{
		Model:    route.Model,
		System:   system,
		Messages: msgs,
		Timeout:  h.timeout(timeout),
	})
	if err != nil {
		return nil, err
	}
	return stream.Map(ctx, src, func(delta string) (any, error) {
		return safeReshape(reshape, envelope(delta))
	}), nil
}
