package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byokrelay/gateway/internal/config"
	"github.com/byokrelay/gateway/internal/protocol"
	"github.com/byokrelay/gateway/internal/providers"
	"github.com/byokrelay/gateway/internal/stream"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Routing.DefaultProviderID = "local"
	cfg.Providers = []config.Provider{
		{
			ID:           "local",
			Type:         config.ProviderTypeOpenAI,
			BaseURL:      "http://localhost:1234/v1",
			APIKey:       "sk-test",
			DefaultModel: "qwen-coder",
		},
	}
	return cfg
}

// forbiddenProviderHandler fails the test if any provider call happens.
func forbiddenProviderHandler(t *testing.T, cfg *config.Config) *Handler {
	t.Helper()
	h := New(cfg, nil)
	h.completeText = func(context.Context, providers.Settings, providers.TextRequest) (string, error) {
		t.Fatal("unexpected one-shot provider call")
		return "", nil
	}
	h.streamTextDeltas = func(context.Context, providers.Settings, providers.TextRequest) (*stream.Stream[string], error) {
		t.Fatal("unexpected text-delta provider call")
		return nil, nil
	}
	h.streamChatChunks = func(context.Context, providers.Settings, providers.ChatRequest) (*stream.Stream[*protocol.ChatChunk], error) {
		t.Fatal("unexpected chat provider call")
		return nil, nil
	}
	h.fetchModels = func(context.Context, string, string, time.Duration) (map[string]any, error) {
		t.Fatal("unexpected official model fetch")
		return nil, nil
	}
	return h
}

func TestHandleUnrecognizedEndpoint(t *testing.T) {
	h := forbiddenProviderHandler(t, testConfig())
	_, err := h.Handle(context.Background(), "/nope", nil, nil, 0, "")
	assert.ErrorIs(t, err, ErrNotHandled)

	_, err = h.HandleStream(context.Background(), "/nope-stream", nil, nil, 0)
	assert.ErrorIs(t, err, ErrNotHandled)
}

func TestHandleOfficialRouteNotHandled(t *testing.T) {
	cfg := testConfig()
	cfg.Routing.Endpoints = map[string]config.EndpointRoute{
		"/completion": {Mode: "official"},
	}
	h := forbiddenProviderHandler(t, cfg)
	_, err := h.Handle(context.Background(), "/completion", nil, nil, 0, "")
	assert.ErrorIs(t, err, ErrNotHandled)
}

func TestHandleDisabledRoute(t *testing.T) {
	cfg := testConfig()
	cfg.Routing.Endpoints = map[string]config.EndpointRoute{
		"/chat-stream": {Mode: "disabled"},
		"/edit":        {Mode: "disabled"},
	}
	h := forbiddenProviderHandler(t, cfg)

	_, err := h.Handle(context.Background(), "/edit", nil, nil, 0, "")
	var disabled *RouteDisabledError
	require.ErrorAs(t, err, &disabled)
	assert.Contains(t, disabled.Error(), "/edit")

	_, err = h.HandleStream(context.Background(), "/chat-stream", nil, nil, 0)
	require.ErrorAs(t, err, &disabled)
}

func TestTelemetryDisabledOneShotStub(t *testing.T) {
	cfg := testConfig()
	cfg.Telemetry.DisabledEndpoints = []string{"/completion"}
	h := forbiddenProviderHandler(t, cfg)

	got, err := h.Handle(context.Background(), "/completion", nil, func(v any) (any, error) {
		return map[string]any{"wrapped": v}, nil
	}, 0, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"wrapped": map[string]any{}}, got)
}

func TestTelemetryStubAnswersBeforeRouting(t *testing.T) {
	// The stub must win even when the route would be official or disabled;
	// a disabled telemetry call may never be proxied upstream.
	cfg := config.Default()
	cfg.Telemetry.DisabledEndpoints = []string{"/completion", "/edit"}
	cfg.Routing.Endpoints = map[string]config.EndpointRoute{
		"/completion": {Mode: "official"},
		"/edit":       {Mode: "disabled"},
	}
	h := forbiddenProviderHandler(t, cfg)

	got, err := h.Handle(context.Background(), "/completion", nil, nil, 0, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got)

	got, err = h.Handle(context.Background(), "/edit", nil, nil, 0, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got)
}

func TestTelemetryStubReshapeFailureDegrades(t *testing.T) {
	cfg := testConfig()
	cfg.Telemetry.DisabledEndpoints = []string{"/completion", "/edit"}
	h := forbiddenProviderHandler(t, cfg)

	_, err := h.Handle(context.Background(), "/completion", nil, func(any) (any, error) {
		return nil, errors.New("boom")
	}, 0, "")
	assert.ErrorIs(t, err, ErrNotHandled)

	// A panicking reshape degrades the same way.
	_, err = h.Handle(context.Background(), "/edit", nil, func(any) (any, error) {
		panic("boom")
	}, 0, "")
	assert.ErrorIs(t, err, ErrNotHandled)
}

func TestTelemetryDisabledStreamIsEmpty(t *testing.T) {
	cfg := testConfig()
	cfg.Telemetry.DisabledEndpoints = []string{"/instruction-stream"}
	h := forbiddenProviderHandler(t, cfg)

	seq, err := h.HandleStream(context.Background(), "/instruction-stream", nil, nil, 0)
	require.NoError(t, err)
	got, err := stream.Collect(context.Background(), seq)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChatStreamEmptyRequestShortCircuits(t *testing.T) {
	h := forbiddenProviderHandler(t, testConfig())

	seq, err := h.HandleStream(context.Background(), "/chat-stream", map[string]any{}, nil, 0)
	require.NoError(t, err)
	got, err := stream.Collect(context.Background(), seq)
	require.NoError(t, err)
	require.Len(t, got, 1)

	chunk, ok := got[0].(*protocol.ChatChunk)
	require.True(t, ok)
	assert.Equal(t, "", chunk.Text)
	assert.Equal(t, protocol.StopReasonEndTurn, chunk.StopReason)
}

func TestChatStreamReshapesEachChunk(t *testing.T) {
	h := New(testConfig(), nil)
	var gotReq providers.ChatRequest
	h.streamChatChunks = func(_ context.Context, _ providers.Settings, req providers.ChatRequest) (*stream.Stream[*protocol.ChatChunk], error) {
		gotReq = req
		return stream.Of(
			protocol.MakeTextDeltaChunk("a"),
			protocol.MakeChatChunk("a", protocol.StopReasonEndTurn),
		), nil
	}

	body := map[string]any{
		"message":                 "hello",
		"feature_detection_flags": map[string]any{"support_tool_use_start": true},
		"tool_definitions": []any{
			map[string]any{"name": "grep", "mcp_server_name": "srv"},
		},
	}
	n := 0
	seq, err := h.HandleStream(context.Background(), "/chat-stream", body, func(v any) (any, error) {
		n++
		return fmt.Sprintf("reshaped-%d", n), nil
	}, 0)
	require.NoError(t, err)
	got, err := stream.Collect(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, []any{"reshaped-1", "reshaped-2"}, got)

	assert.True(t, gotReq.SupportToolUseStart)
	assert.Equal(t, "qwen-coder", gotReq.Model)
	assert.Equal(t, protocol.ToolMeta{MCPServerName: "srv"}, gotReq.ToolMeta["grep"])
}

func TestCompletionEnvelope(t *testing.T) {
	h := New(testConfig(), nil)
	h.completeText = func(_ context.Context, _ providers.Settings, req providers.TextRequest) (string, error) {
		assert.Equal(t, "qwen-coder", req.Model)
		return "completed", nil
	}
	got, err := h.Handle(context.Background(), "/completion", map[string]any{"prefix": "x"}, nil, 0, "")
	require.NoError(t, err)
	result, ok := got.(*protocol.CompletionResult)
	require.True(t, ok)
	assert.Equal(t, "completed", result.Text)
}

func TestOneShotChatEnvelope(t *testing.T) {
	h := New(testConfig(), nil)
	h.completeText = func(_ context.Context, _ providers.Settings, req providers.TextRequest) (string, error) {
		require.NotEmpty(t, req.Messages)
		return "answer", nil
	}
	got, err := h.Handle(context.Background(), "/chat", map[string]any{"message": "q"}, nil, 0, "")
	require.NoError(t, err)
	result, ok := got.(*protocol.ChatResult)
	require.True(t, ok)
	assert.Equal(t, "answer", result.Text)
	assert.Empty(t, result.Nodes)
	assert.NotNil(t, result.Nodes)
}

func TestTextDeltaStreamEnvelopes(t *testing.T) {
	h := New(testConfig(), nil)
	h.streamTextDeltas = func(context.Context, providers.Settings, providers.TextRequest) (*stream.Stream[string], error) {
		return stream.Of("one", "two"), nil
	}

	seq, err := h.HandleStream(context.Background(), "/prompt-enhancer", map[string]any{"message": "m"}, nil, 0)
	require.NoError(t, err)
	got, err := stream.Collect(context.Background(), seq)
	require.NoError(t, err)
	require.Len(t, got, 2)
	first, ok := got[0].(*protocol.ChatResult)
	require.True(t, ok)
	assert.Equal(t, "one", first.Text)

	seq, err = h.HandleStream(context.Background(), "/smart-paste-stream", map[string]any{"message": "m"}, nil, 0)
	require.NoError(t, err)
	got, err = stream.Collect(context.Background(), seq)
	require.NoError(t, err)
	require.Len(t, got, 2)
	text, ok := got[0].(*protocol.TextResult)
	require.True(t, ok)
	assert.Equal(t, "one", text.Text)
}

func TestNextEditStreamSingleChunk(t *testing.T) {
	h := New(testConfig(), nil)
	h.completeText = func(context.Context, providers.Settings, providers.TextRequest) (string, error) {
		return "suggested", nil
	}
	body := map[string]any{
		"path":                 "a.go",
		"blob_name":            "blob-1",
		"selection_begin_char": float64(10),
		"selection_end_char":   float64(20),
		"selected_text":        "old code",
	}
	seq, err := h.HandleStream(context.Background(), "/next-edit-stream", body, nil, 0)
	require.NoError(t, err)
	got, err := stream.Collect(context.Background(), seq)
	require.NoError(t, err)
	require.Len(t, got, 1)

	chunk, ok := got[0].(*protocol.NextEditGenerationChunk)
	require.True(t, ok)
	assert.Equal(t, "a.go", chunk.Path)
	assert.Equal(t, "blob-1", chunk.BlobName)
	assert.Equal(t, 10, chunk.CharStart)
	assert.Equal(t, 20, chunk.CharEnd)
	assert.Equal(t, "old code", chunk.ExistingCode)
	assert.Equal(t, "suggested", chunk.SuggestedCode)
}

func TestNextEditStreamDefaultsBounds(t *testing.T) {
	h := New(testConfig(), nil)
	h.completeText = func(context.Context, providers.Settings, providers.TextRequest) (string, error) {
		return "s", nil
	}
	seq, err := h.HandleStream(context.Background(), "/next-edit-stream", map[string]any{
		"char_start": float64(-5),
	}, nil, 0)
	require.NoError(t, err)
	got, err := stream.Collect(context.Background(), seq)
	require.NoError(t, err)
	chunk := got[0].(*protocol.NextEditGenerationChunk)
	assert.Equal(t, 0, chunk.CharStart)
	assert.Equal(t, 0, chunk.CharEnd)
}
