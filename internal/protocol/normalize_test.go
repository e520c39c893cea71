package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickPrefersFirstPresentAlias(t *testing.T) {
	obj := map[string]any{"request_message": "", "requestMessage": "later"}

	// Presence wins over truthiness: the explicit empty string is returned.
	v, ok := Pick(obj, "request_message", "requestMessage")
	require.True(t, ok)
	assert.Equal(t, "", v)

	v, ok = Pick(obj, "missing", "requestMessage")
	require.True(t, ok)
	assert.Equal(t, "later", v)

	_, ok = Pick(obj, "nope")
	assert.False(t, ok)

	_, ok = Pick("not an object", "anything")
	assert.False(t, ok)
}

func TestLooseAccessorsNeverPanic(t *testing.T) {
	for _, v := range []any{nil, "x", 3.5, true, []any{1}, map[string]any{}} {
		assert.NotPanics(t, func() {
			AsRecord(v)
			AsArray(v)
			AsString(v)
			AsBool(v)
			AsInt(v)
			NodeType(v)
			NodeID(v)
		})
	}
	assert.Equal(t, map[string]any{}, AsRecord("nope"))
	assert.Nil(t, AsArray(42.0))
	assert.Equal(t, "", AsString([]any{"x"}))
	assert.Equal(t, "3.5", AsString(3.5))
	assert.Equal(t, 0, AsInt("garbage"))
	assert.Equal(t, 7, AsInt("7"))
}

func TestNodeTypeUnknownTags(t *testing.T) {
	assert.Equal(t, NodeTypeUnknown, NodeType(map[string]any{}))
	assert.Equal(t, NodeTypeUnknown, NodeType(map[string]any{"type": "wat"}))
	assert.Equal(t, NodeTypeUnknown, NodeType(nil))
	assert.Equal(t, RequestNodeHistorySummary, NodeType(map[string]any{"type": 5.0}))
	assert.Equal(t, ResponseNodeToolUse, NodeType(map[string]any{"nodeType": "5"}))
}

func TestNormalizeChatRequestMalformedBody(t *testing.T) {
	for _, body := range []any{nil, "x", 12.0, []any{"a"}} {
		req := NormalizeChatRequest(body)
		require.NotNil(t, req)
		assert.True(t, req.IsEmpty())
	}
}

func TestNormalizeChatRequestAliases(t *testing.T) {
	body := map[string]any{
		"message":        "hi",
		"conversationId": "c-1",
		"chatHistory": []any{
			map[string]any{
				"requestId":      "r-1",
				"requestMessage": "earlier",
				"response_text":  "sure",
				"nodes":          []any{map[string]any{"type": 0.0}},
			},
		},
		"feature_detection_flags": map[string]any{"support_tool_use_start": true},
	}
	req := NormalizeChatRequest(body)
	assert.Equal(t, "hi", req.Message)
	assert.Equal(t, "c-1", req.ConversationID)
	require.Len(t, req.ChatHistory, 1)
	assert.Equal(t, "r-1", req.ChatHistory[0].RequestID)
	assert.Equal(t, "earlier", req.ChatHistory[0].RequestMessage)
	assert.Equal(t, "sure", req.ChatHistory[0].ResponseText)
	assert.Len(t, req.ChatHistory[0].Nodes, 1)
	assert.True(t, req.SupportsToolUseStart())
	assert.False(t, req.IsEmpty())
}

func TestMergedRequestNodesOrder(t *testing.T) {
	it := ChatHistoryItem{
		RequestNodes:           []any{"a"},
		StructuredRequestNodes: []any{"b"},
		Nodes:                  []any{"c"},
	}
	assert.Equal(t, []any{"a", "b", "c"}, it.MergedRequestNodes())
}
