package providers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/byokrelay/gateway/internal/config"
	"github.com/byokrelay/gateway/internal/protocol"
	"github.com/byokrelay/gateway/internal/stream"
)

func anthropicSettings(url string) Settings {
	return Settings{
		Type:    config.ProviderTypeAnthropic,
		BaseURL: url,
		APIKey:  "sk-ant-test",
	}
}

func TestAnthropicCompleteText(t *testing.T) {
	var gotBody []byte
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello"},{"type":"text","text":" world"}]}`))
	}))
	defer srv.Close()

	text, err := anthropicCompleteText(context.Background(), anthropicSettings(srv.URL), TextRequest{
		Model:    "claude-x",
		System:   "be brief",
		Messages: []protocol.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)

	assert.Equal(t, "sk-ant-test", gotKey)
	assert.Equal(t, anthropicVersion, gotVersion)
	assert.Equal(t, "claude-x", gjson.GetBytes(gotBody, "model").String())
	assert.Equal(t, "be brief", gjson.GetBytes(gotBody, "system").String())
	assert.Equal(t, int64(config.DefaultAnthropicMaxTokens), gjson.GetBytes(gotBody, "max_tokens").Int())
}

func TestAnthropicStreamTextDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"type":"message_start"}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"He"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"llo"}}`,
			`{"type":"message_stop"}`,
		}
		for _, e := range events {
			_, _ = io.WriteString(w, "data: "+e+"\n\n")
		}
	}))
	defer srv.Close()

	s, err := anthropicStreamTextDeltas(context.Background(), anthropicSettings(srv.URL), TextRequest{Model: "m"})
	require.NoError(t, err)
	deltas, err := stream.Collect(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"He", "llo"}, deltas)
}

func TestAnthropicStreamChatChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "grep", gjson.GetBytes(body, "tools.0.name").String())

		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`,
			`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"grep"}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"q\":"}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"1}"}}`,
			`{"type":"content_block_stop","index":1}`,
			`{"type":"message_delta","delta":{"stop_reason":"tool_use"}}`,
			`{"type":"message_stop"}`,
		}
		for _, e := range events {
			_, _ = io.WriteString(w, "data: "+e+"\n\n")
		}
	}))
	defer srv.Close()

	s, err := anthropicStreamChatChunks(context.Background(), anthropicSettings(srv.URL), ChatRequest{
		Model: "m",
		ToolDefinitions: []any{
			map[string]any{"name": "grep"},
		},
		SupportToolUseStart: true,
	})
	require.NoError(t, err)
	chunks, err := stream.Collect(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	assert.Equal(t, "Hi", chunks[0].Text)

	start := chunks[1]
	assert.Equal(t, protocol.ResponseNodeToolUseStart, start.Nodes[0].Type)
	assert.Equal(t, "toolu_1", start.Nodes[0].ToolUse.ToolUseID)

	full := chunks[2]
	assert.Equal(t, protocol.ResponseNodeToolUse, full.Nodes[0].Type)
	assert.Equal(t, `{"q":1}`, full.Nodes[0].ToolUse.InputJSON)

	final := chunks[3]
	assert.Equal(t, "Hi", final.Text)
	assert.Equal(t, protocol.StopReasonToolUse, final.StopReason)
}

func TestAnthropicStreamFlushesUnclosedToolBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_2","name":"read_file"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{}"}}`,
		}
		for _, e := range events {
			_, _ = io.WriteString(w, "data: "+e+"\n\n")
		}
	}))
	defer srv.Close()

	s, err := anthropicStreamChatChunks(context.Background(), anthropicSettings(srv.URL), ChatRequest{Model: "m"})
	require.NoError(t, err)
	chunks, err := stream.Collect(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "toolu_2", chunks[0].Nodes[0].ToolUse.ToolUseID)
	assert.Equal(t, protocol.StopReasonToolUse, chunks[1].StopReason)
}
