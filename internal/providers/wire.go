// Wire-format message shaping.
//
// DESIGN: the simple shapers cover the one-shot and text-delta endpoints,
// where every message is plain text: OpenAI gets the system prompt as a
// leading system message and empty-content messages are dropped; Anthropic
// keeps the system prompt out of the list and admits only user/assistant
// roles with non-empty content. The chat shapers additionally carry tool
// calls and tool results in each format's native encoding.
package providers

import (
	"encoding/json"
	"strings"

	"github.com/byokrelay/gateway/internal/protocol"
)

func simpleOpenAIMessages(system string, msgs []protocol.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs)+1)
	if system != "" {
		out = append(out, map[string]any{"role": "system", "content": system})
	}
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		out = append(out, map[string]any{"role": m.Role, "content": m.Content})
	}
	return out
}

func simpleAnthropicMessages(msgs []protocol.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		if m.Content == "" {
			continue
		}
		out = append(out, map[string]any{"role": m.Role, "content": m.Content})
	}
	return out
}

// openAIChatMessages flattens conversation turns into OpenAI chat messages.
// Tool results travel as role "tool" messages ahead of the user text so
// they follow the assistant message whose calls they answer.
func openAIChatMessages(system string, msgs []protocol.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs)+1)
	if system != "" {
		out = append(out, map[string]any{"role": "system", "content": system})
	}
	for _, m := range msgs {
		switch m.Role {
		case "user":
			for _, tr := range m.ToolResults {
				out = append(out, map[string]any{
					"role":         "tool",
					"tool_call_id": tr.ToolUseID,
					"content":      tr.Content,
				})
			}
			if m.Content != "" {
				out = append(out, map[string]any{"role": "user", "content": m.Content})
			}
		case "assistant":
			entry := map[string]any{"role": "assistant", "content": m.Content}
			if len(m.ToolCalls) > 0 {
				calls := make([]map[string]any, 0, len(m.ToolCalls))
				for _, tc := range m.ToolCalls {
					calls = append(calls, map[string]any{
						"id":   tc.ID,
						"type": "function",
						"function": map[string]any{
							"name":      tc.Name,
							"arguments": tc.Arguments,
						},
					})
				}
				entry["tool_calls"] = calls
			}
			out = append(out, entry)
		}
	}
	return out
}

// anthropicChatMessages flattens conversation turns into Anthropic content
// blocks: tool_result blocks lead each user turn, tool_use blocks trail
// each assistant turn.
func anthropicChatMessages(msgs []protocol.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		var blocks []map[string]any
		switch m.Role {
		case "user":
			for _, tr := range m.ToolResults {
				blocks = append(blocks, map[string]any{
					"type":        "tool_result",
					"tool_use_id": tr.ToolUseID,
					"content":     tr.Content,
					"is_error":    tr.IsError,
				})
			}
			if m.Content != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": m.Content})
			}
		case "assistant":
			if m.Content != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": parseJSONObjectOrEmpty(tc.Arguments),
				})
			}
		default:
			continue
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, map[string]any{"role": m.Role, "content": blocks})
	}
	return out
}

// parseJSONObjectOrEmpty parses serialized tool arguments, tolerating
// garbage: anything that is not a JSON object becomes {}.
func parseJSONObjectOrEmpty(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return map[string]any{}
}
