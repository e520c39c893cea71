// Response envelopes handed back to the host.
//
// DESIGN: each endpoint class has its own envelope; builders here are the
// single place that knows their field layout. Envelopes marshal without
// HTML escaping (see utils.MarshalNoEscape) since rendered summaries embed
// XML-like tags.
package protocol

import "strings"

// Stop reasons carried on chat chunks.
const (
	StopReasonEndTurn = "end_turn"
	StopReasonToolUse = "tool_use"
)

// OutputNode is one typed node of a chat response.
type OutputNode struct {
	ID      int          `json:"id"`
	Type    int          `json:"type"`
	Content string       `json:"content"`
	ToolUse *ToolUseInfo `json:"tool_use,omitempty"`
}

// ToolUseInfo describes a requested tool invocation on an output node.
type ToolUseInfo struct {
	ToolUseID     string `json:"tool_use_id"`
	ToolName      string `json:"tool_name"`
	InputJSON     string `json:"input_json"`
	MCPServerName string `json:"mcp_server_name,omitempty"`
	MCPToolName   string `json:"mcp_tool_name,omitempty"`
}

// ChatChunk is one streamed element of a chat response.
type ChatChunk struct {
	Text       string       `json:"text"`
	Nodes      []OutputNode `json:"nodes"`
	StopReason string       `json:"stop_reason,omitempty"`
}

// MakeChatChunk builds a finished chat chunk carrying text and a stop
// reason. The text is mirrored into a MainTextFinished node so node-aware
// consumers see the same content.
func MakeChatChunk(text, stopReason string) *ChatChunk {
	return &ChatChunk{
		Text:       text,
		Nodes:      []OutputNode{{Type: ResponseNodeMainTextFinished, Content: text}},
		StopReason: stopReason,
	}
}

// MakeToolUseChunk builds a chunk carrying one tool-use node. start selects
// the in-progress (tool-use-start) tag instead of the full tool-use tag.
func MakeToolUseChunk(info ToolUseInfo, start bool) *ChatChunk {
	nodeType := ResponseNodeToolUse
	if start {
		nodeType = ResponseNodeToolUseStart
	}
	return &ChatChunk{
		Nodes: []OutputNode{{Type: nodeType, ToolUse: &info}},
	}
}

// MakeTextDeltaChunk builds an incremental text chunk.
func MakeTextDeltaChunk(text string) *ChatChunk {
	return &ChatChunk{
		Text:  text,
		Nodes: []OutputNode{{Type: ResponseNodeRawResponse, Content: text}},
	}
}

// ChatResult is the one-shot chat envelope.
type ChatResult struct {
	Text  string       `json:"text"`
	Nodes []OutputNode `json:"nodes"`
}

// MakeChatResult builds a one-shot chat envelope.
func MakeChatResult(text string, nodes []OutputNode) *ChatResult {
	if nodes == nil {
		nodes = []OutputNode{}
	}
	return &ChatResult{Text: text, Nodes: nodes}
}

// TextResult is the bare-text envelope used by /edit and the plain text
// streaming endpoints.
type TextResult struct {
	Text string `json:"text"`
}

// MakeTextResult builds a bare-text envelope.
func MakeTextResult(text string) *TextResult {
	return &TextResult{Text: text}
}

// CompletionResult is the completion envelope.
type CompletionResult struct {
	Text      string `json:"text"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

// MakeCompletionResult builds a completion envelope.
func MakeCompletionResult(text string, timeoutMs int64) *CompletionResult {
	return &CompletionResult{Text: text, TimeoutMs: timeoutMs}
}

// NextEditGenerationChunk is the single chunk yielded by /next-edit-stream.
type NextEditGenerationChunk struct {
	Path          string `json:"path"`
	BlobName      string `json:"blob_name"`
	CharStart     int    `json:"char_start"`
	CharEnd       int    `json:"char_end"`
	ExistingCode  string `json:"existing_code"`
	SuggestedCode string `json:"suggested_code"`
}

// LineRange is a clamped [start, stop] line range.
type LineRange struct {
	Start int `json:"start"`
	Stop  int `json:"stop"`
}

// LocationItem is a path plus line range.
type LocationItem struct {
	Path  string    `json:"path"`
	Range LineRange `json:"range"`
}

// CandidateLocation is one next-edit location candidate.
type CandidateLocation struct {
	Item      LocationItem      `json:"item"`
	Score     float64           `json:"score"`
	DebugInfo map[string]string `json:"debug_info"`
}

// NextEditLocationResult is the /next_edit_loc envelope.
type NextEditLocationResult struct {
	CandidateLocations []CandidateLocation `json:"candidate_locations"`
}

// ModelInfo is one entry of a model listing.
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
}

// MakeModelInfo builds a model entry for a BYOK model name.
func MakeModelInfo(name string) ModelInfo {
	return ModelInfo{Name: name, DisplayName: name}
}

// GetModelsResult is the locally synthesized model listing used when the
// official backend cannot be reached.
type GetModelsResult struct {
	Models       []ModelInfo    `json:"models"`
	DefaultModel string         `json:"default_model"`
	FeatureFlags map[string]any `json:"feature_flags"`
}

// MakeGetModelsResult builds a local model listing.
func MakeGetModelsResult(defaultModel string, models []ModelInfo) *GetModelsResult {
	if models == nil {
		models = []ModelInfo{}
	}
	flags := EnsureModelRegistryFeatureFlags(nil, modelNames(models), defaultModel)
	return &GetModelsResult{Models: models, DefaultModel: defaultModel, FeatureFlags: flags}
}

func modelNames(models []ModelInfo) []string {
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Name)
	}
	return names
}

// EnsureModelRegistryFeatureFlags recomputes the feature flags that make
// BYOK models visible to the host's model registry. Existing unrelated
// flags are preserved.
func EnsureModelRegistryFeatureFlags(base map[string]any, byokModelIDs []string, defaultModel string) map[string]any {
	flags := make(map[string]any, len(base)+4)
	for k, v := range base {
		flags[k] = v
	}
	ids := make([]string, 0, len(byokModelIDs))
	for _, id := range byokModelIDs {
		if strings.TrimSpace(id) != "" {
			ids = append(ids, id)
		}
	}
	flags["byok_model_ids"] = ids
	flags["model_registry_enabled"] = true
	if strings.TrimSpace(defaultModel) != "" {
		flags["default_model"] = defaultModel
		flags["agent_chat_model"] = defaultModel
	}
	return flags
}
