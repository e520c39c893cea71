// Provider-bound message construction.
//
// DESIGN: Two layers. BuildConversationMessages flattens a normalized chat
// request (history plus current turn) into provider-neutral messages
// carrying tool calls and tool results; the provider adapters serialize
// those per wire format. BuildMessagesForEndpoint covers the simpler
// one-shot and text-delta endpoints, where each endpoint owns a small fixed
// prompt.
package protocol

import (
	"fmt"
	"strings"
)

// Message is one provider-bound conversation message. Content is plain
// text; ToolCalls and ToolResults are serialized per wire format by the
// provider adapters.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall   // assistant turns that requested tools
	ToolResults []ToolResult // user turns carrying tool results
}

// ToolResult is one tool outcome attached to a user turn.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// TextFromRequestNodes joins the content of TextNode entries, dropping
// blank lines, and falls back to the given plain message when no node
// yields text.
func TextFromRequestNodes(nodes []any, fallback string) string {
	var b strings.Builder
	for _, n := range nodes {
		if NodeType(n) != RequestNodeText {
			continue
		}
		content := PickString(PickRecord(n, "text_node", "textNode"), "content")
		if content == "" {
			content = PickString(n, "content")
		}
		for _, line := range strings.Split(content, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(line)
		}
	}
	if strings.TrimSpace(b.String()) != "" {
		return b.String()
	}
	return fallback
}

// ToolResultsFromRequestNodes collects tool results carried on request
// nodes. Results without a tool_use_id are dropped.
func ToolResultsFromRequestNodes(nodes []any) []ToolResult {
	var out []ToolResult
	for _, n := range nodes {
		if NodeType(n) != RequestNodeToolResult {
			continue
		}
		tr := PickRecord(n, "tool_result_node", "toolResultNode")
		id := strings.TrimSpace(PickString(tr, "tool_use_id", "toolUseId"))
		if id == "" {
			continue
		}
		out = append(out, ToolResult{
			ToolUseID: id,
			Content:   PickString(tr, "content"),
			IsError:   AsBool(PickAny(tr, "is_error", "isError")),
		})
	}
	return out
}

// conversationTurns flattens history plus the current turn into messages.
func conversationTurns(req *ChatRequest) []Message {
	var out []Message

	appendUser := func(text string, results []ToolResult) {
		if strings.TrimSpace(text) == "" && len(results) == 0 {
			return
		}
		out = append(out, Message{Role: "user", Content: text, ToolResults: results})
	}
	appendAssistant := func(text string, calls []ToolCall) {
		if strings.TrimSpace(text) == "" && len(calls) == 0 {
			return
		}
		out = append(out, Message{Role: "assistant", Content: text, ToolCalls: calls})
	}

	for i := range req.ChatHistory {
		it := &req.ChatHistory[i]
		reqNodes := it.MergedRequestNodes()
		appendUser(TextFromRequestNodes(reqNodes, it.RequestMessage), ToolResultsFromRequestNodes(reqNodes))

		respNodes := append(append([]any{}, it.ResponseNodes...), it.StructuredOutputNodes...)
		text := ExtractAssistantText(respNodes)
		if text == "" {
			text = it.ResponseText
		}
		appendAssistant(text, ExtractToolCalls(respNodes))
	}

	currentNodes := make([]any, 0, len(req.RequestNodes)+len(req.StructuredRequestNodes)+len(req.Nodes))
	currentNodes = append(currentNodes, req.RequestNodes...)
	currentNodes = append(currentNodes, req.StructuredRequestNodes...)
	currentNodes = append(currentNodes, req.Nodes...)
	appendUser(TextFromRequestNodes(currentNodes, req.Message), ToolResultsFromRequestNodes(currentNodes))

	return out
}

// BuildConversationMessages flattens the request (history plus current
// turn) into provider-neutral messages. The system prompt is NOT included;
// the adapters place it per wire format.
func BuildConversationMessages(req *ChatRequest) []Message {
	return conversationTurns(req)
}

// BuildMessagesForEndpoint builds the system prompt and messages for the
// one-shot and text-delta endpoints. Unknown endpoints get a bare user
// message from the body's message/prompt field.
func BuildMessagesForEndpoint(endpoint string, body any) (string, []Message) {
	req := NormalizeChatRequest(body)

	switch endpoint {
	case "/completion", "/chat-input-completion":
		system := "You are a code completion engine. Continue the code at the cursor. Reply with the inserted text only, no explanations, no markdown fences."
		if lang := strings.TrimSpace(req.Lang); lang != "" {
			system += fmt.Sprintf(" The code is %s.", lang)
		}
		if path := strings.TrimSpace(req.Path); path != "" {
			system += fmt.Sprintf(" Current file: %s.", path)
		}
		user := req.Prefix + "<cursor>" + req.Suffix
		return system, []Message{{Role: "user", Content: user}}

	case "/edit":
		system := "You are a code editing assistant. Apply the instruction to the selected code. Reply with the replacement code only."
		var parts []string
		if sel := PickString(body, "selected_text", "selectedText"); strings.TrimSpace(sel) != "" {
			parts = append(parts, "Selected code:\n"+sel)
		}
		if strings.TrimSpace(req.Message) != "" {
			parts = append(parts, "Instruction:\n"+req.Message)
		}
		return system, []Message{{Role: "user", Content: strings.Join(parts, "\n\n")}}

	case "/chat":
		return BuildSystemPrompt(req), conversationTurns(req)

	case "/prompt-enhancer":
		system := "Rewrite the user's prompt to be clearer and more specific while preserving its intent. Reply with the rewritten prompt only."
		return system, []Message{{Role: "user", Content: req.Message}}

	case "/generate-conversation-title":
		system := "Generate a short title (at most 8 words) for this conversation. Reply with the title only."
		text := req.Message
		if text == "" && len(req.ChatHistory) > 0 {
			text = req.ChatHistory[0].RequestMessage
		}
		return system, []Message{{Role: "user", Content: text}}

	case "/instruction-stream", "/smart-paste-stream":
		system := "You are a code editing assistant. Follow the instruction against the provided text. Reply with the resulting text only."
		var parts []string
		if sel := PickString(body, "selected_text", "selectedText", "text"); strings.TrimSpace(sel) != "" {
			parts = append(parts, "Text:\n"+sel)
		}
		if strings.TrimSpace(req.Message) != "" {
			parts = append(parts, "Instruction:\n"+req.Message)
		}
		return system, []Message{{Role: "user", Content: strings.Join(parts, "\n\n")}}

	case "/generate-commit-message-stream":
		system := "Write a concise git commit message for the following change. Reply with the commit message only."
		diff := PickString(body, "diff", "changes", "patch")
		if diff == "" {
			diff = req.Message
		}
		return system, []Message{{Role: "user", Content: diff}}

	case "/next-edit-stream":
		system := "You are a code editing assistant. Propose the next edit for the selected region. Reply with the replacement text only."
		var parts []string
		if path := strings.TrimSpace(req.Path); path != "" {
			parts = append(parts, "File: "+path)
		}
		if sel := PickString(body, "selected_text", "selectedText"); sel != "" {
			parts = append(parts, "Selected region:\n"+sel)
		}
		if strings.TrimSpace(req.Message) != "" {
			parts = append(parts, "Context:\n"+req.Message)
		}
		return system, []Message{{Role: "user", Content: strings.Join(parts, "\n\n")}}
	}

	return "", []Message{{Role: "user", Content: req.Message}}
}
