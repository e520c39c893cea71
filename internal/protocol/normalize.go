package protocol

import "strings"

// ChatHistoryItem is one past turn. A turn's request nodes may live in any
// of three aliased slots depending on client version; consumers must treat
// the concatenation RequestNodes + StructuredRequestNodes + Nodes, in that
// order, as the authoritative sequence.
type ChatHistoryItem struct {
	RequestID              string
	RequestMessage         string
	ResponseText           string
	RequestNodes           []any
	StructuredRequestNodes []any
	Nodes                  []any
	ResponseNodes          []any
	StructuredOutputNodes  []any
}

// MergedRequestNodes returns the three aliased request-node slots as one
// ordered sequence.
func (it *ChatHistoryItem) MergedRequestNodes() []any {
	out := make([]any, 0, len(it.RequestNodes)+len(it.StructuredRequestNodes)+len(it.Nodes))
	out = append(out, it.RequestNodes...)
	out = append(out, it.StructuredRequestNodes...)
	out = append(out, it.Nodes...)
	return out
}

// ChatRequest is the fully normalized request. Constructed once per request
// via NormalizeChatRequest; never partially normalized.
type ChatRequest struct {
	Message        string
	ConversationID string
	ChatHistory    []ChatHistoryItem

	ToolDefinitions []any

	Nodes                  []any
	StructuredRequestNodes []any
	RequestNodes           []any

	AgentMemories       string
	Mode                string
	Prefix              string
	Suffix              string
	Lang                string
	Path                string
	UserGuidelines      string
	WorkspaceGuidelines string
	Rules               any

	FeatureDetectionFlags map[string]any
}

// IsEmpty reports whether the request carries no message, no nodes, no
// history and no request nodes. Empty requests short-circuit without a
// provider call.
func (r *ChatRequest) IsEmpty() bool {
	return strings.TrimSpace(r.Message) == "" &&
		len(r.Nodes) == 0 &&
		len(r.ChatHistory) == 0 &&
		len(r.StructuredRequestNodes) == 0 &&
		len(r.RequestNodes) == 0
}

// SupportsToolUseStart reports whether the client understands separate
// tool-use-start events, from the request's feature detection flags.
func (r *ChatRequest) SupportsToolUseStart() bool {
	return AsBool(r.FeatureDetectionFlags["support_tool_use_start"]) ||
		AsBool(r.FeatureDetectionFlags["supportToolUseStart"])
}

// NormalizeChatHistoryItem shapes one loosely-typed history entry.
func NormalizeChatHistoryItem(raw any) ChatHistoryItem {
	return ChatHistoryItem{
		RequestID:              PickString(raw, "request_id", "requestId", "requestID", "id"),
		RequestMessage:         PickString(raw, "request_message", "requestMessage", "message"),
		ResponseText:           PickString(raw, "response_text", "responseText", "response", "text"),
		RequestNodes:           PickArray(raw, "request_nodes", "requestNodes"),
		StructuredRequestNodes: PickArray(raw, "structured_request_nodes", "structuredRequestNodes"),
		Nodes:                  PickArray(raw, "nodes"),
		ResponseNodes:          PickArray(raw, "response_nodes", "responseNodes"),
		StructuredOutputNodes:  PickArray(raw, "structured_output_nodes", "structuredOutputNodes"),
	}
}

// NormalizeChatRequest shapes an arbitrary decoded body into a ChatRequest.
// Malformed input never fails: non-objects normalize to the empty request.
func NormalizeChatRequest(body any) *ChatRequest {
	rawHistory := PickArray(body, "chat_history", "chatHistory")
	history := make([]ChatHistoryItem, 0, len(rawHistory))
	for _, it := range rawHistory {
		history = append(history, NormalizeChatHistoryItem(it))
	}

	return &ChatRequest{
		Message:                PickString(body, "message", "prompt", "instruction"),
		ConversationID:         PickString(body, "conversation_id", "conversationId", "conversationID"),
		ChatHistory:            history,
		ToolDefinitions:        PickArray(body, "tool_definitions", "toolDefinitions"),
		Nodes:                  PickArray(body, "nodes"),
		StructuredRequestNodes: PickArray(body, "structured_request_nodes", "structuredRequestNodes"),
		RequestNodes:           PickArray(body, "request_nodes", "requestNodes"),
		AgentMemories:          PickString(body, "agent_memories", "agentMemories"),
		Mode:                   PickString(body, "mode"),
		Prefix:                 PickString(body, "prefix"),
		Suffix:                 PickString(body, "suffix"),
		Lang:                   PickString(body, "lang", "language"),
		Path:                   PickString(body, "path"),
		UserGuidelines:         PickString(body, "user_guidelines", "userGuidelines"),
		WorkspaceGuidelines:    PickString(body, "workspace_guidelines", "workspaceGuidelines"),
		Rules:                  PickAny(body, "rules"),
		FeatureDetectionFlags:  PickRecord(body, "feature_detection_flags", "featureDetectionFlags"),
	}
}
