// Extraction of assistant output from response node streams.
package protocol

import (
	"fmt"
	"strings"
)

// ToolCall is one requested tool invocation recovered from output nodes.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ExtractAssistantText recovers the final assistant text from a list of
// output nodes. A finished-text node supersedes streaming accumulation:
// the last MainTextFinished node with non-empty content wins; otherwise all
// RawResponse fragments are concatenated in order. The result is trimmed.
func ExtractAssistantText(nodes []any) string {
	var finished string
	var raw strings.Builder
	for _, n := range nodes {
		content := PickString(n, "content")
		switch NodeType(n) {
		case ResponseNodeMainTextFinished:
			if strings.TrimSpace(content) != "" {
				finished = content
			}
		case ResponseNodeRawResponse:
			raw.WriteString(content)
		}
	}
	if strings.TrimSpace(finished) != "" {
		return strings.TrimSpace(finished)
	}
	return strings.TrimSpace(raw.String())
}

// ExtractToolCalls recovers requested tool invocations from output nodes.
// Full tool-use nodes are authoritative; tool-use-start nodes are consulted
// only when no full node exists. Entries without a tool name are dropped,
// ids default to a synthesized sequential id, and duplicate ids keep their
// first occurrence.
func ExtractToolCalls(nodes []any) []ToolCall {
	var toolUse, toolUseStart []any
	for _, n := range nodes {
		switch NodeType(n) {
		case ResponseNodeToolUse:
			toolUse = append(toolUse, n)
		case ResponseNodeToolUseStart:
			toolUseStart = append(toolUseStart, n)
		}
	}
	chosen := toolUse
	if len(chosen) == 0 {
		chosen = toolUseStart
	}

	seen := make(map[string]bool)
	out := make([]ToolCall, 0, len(chosen))
	for _, n := range chosen {
		tu := PickRecord(n, "tool_use", "toolUse")
		name := strings.TrimSpace(PickString(tu, "tool_name", "toolName"))
		if name == "" {
			continue
		}
		id := strings.TrimSpace(PickString(tu, "tool_use_id", "toolUseId"))
		if id == "" {
			id = fmt.Sprintf("tool-%d", len(out)+1)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		args := strings.TrimSpace(PickString(tu, "input_json", "inputJson"))
		if args == "" {
			args = "{}"
		}
		out = append(out, ToolCall{ID: id, Name: name, Arguments: args})
	}
	return out
}
