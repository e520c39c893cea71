// Tool definition translation.
//
// DESIGN: Definitions arrive provider-agnostic; each provider family gets
// its own spec shape. A tool's input schema may be a structured object or a
// serialized-JSON fallback; resolution prefers the structured form and
// silently absorbs parse failures. Definitions are not deduplicated by
// name: a caller that defines a tool twice gets both entries, in order.
package protocol

import (
	"encoding/json"
	"strings"
)

// ToolDefinition is a normalized provider-agnostic tool definition.
type ToolDefinition struct {
	Name            string
	Description     string
	InputSchema     map[string]any
	InputSchemaJSON string

	// MCP metadata is used only for attribution lookups, never sent upstream.
	MCPServerName string
	MCPToolName   string
}

// ToolMeta is the MCP attribution pair for a tool.
type ToolMeta struct {
	MCPServerName string
	MCPToolName   string
}

// OpenAITool is the OpenAI-style function spec.
type OpenAITool struct {
	Type     string             `json:"type"`
	Function OpenAIToolFunction `json:"function"`
}

// OpenAIToolFunction carries the function schema.
type OpenAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// AnthropicTool is the Anthropic-style tool spec.
type AnthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// NormalizeToolDefinitions shapes a loose tool-definition list, dropping
// entries whose name is empty after trimming. First-seen order is kept.
func NormalizeToolDefinitions(raw any) []ToolDefinition {
	list := AsArray(raw)
	out := make([]ToolDefinition, 0, len(list))
	for _, it := range list {
		name := strings.TrimSpace(PickString(it, "name"))
		if name == "" {
			continue
		}
		var schema map[string]any
		if v, ok := Pick(it, "input_schema", "inputSchema"); ok {
			if m, isObj := v.(map[string]any); isObj {
				schema = m
			}
		}
		out = append(out, ToolDefinition{
			Name:            name,
			Description:     PickString(it, "description"),
			InputSchema:     schema,
			InputSchemaJSON: PickString(it, "input_schema_json", "inputSchemaJson"),
			MCPServerName:   PickString(it, "mcp_server_name", "mcpServerName"),
			MCPToolName:     PickString(it, "mcp_tool_name", "mcpToolName"),
		})
	}
	return out
}

// ResolveToolSchema resolves a definition's input schema: the structured
// object if present, else the JSON-string fallback if it parses to an
// object, else an empty object schema. Parse failures are never raised.
func ResolveToolSchema(def ToolDefinition) map[string]any {
	if def.InputSchema != nil {
		return def.InputSchema
	}
	if raw := strings.TrimSpace(def.InputSchemaJSON); raw != "" {
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			if m, ok := parsed.(map[string]any); ok {
				return m
			}
		}
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// ConvertOpenAITools maps definitions to OpenAI function specs. An absent
// description is omitted entirely rather than sent as "".
func ConvertOpenAITools(raw any) []OpenAITool {
	defs := NormalizeToolDefinitions(raw)
	out := make([]OpenAITool, 0, len(defs))
	for _, d := range defs {
		out = append(out, OpenAITool{
			Type: "function",
			Function: OpenAIToolFunction{
				Name:        d.Name,
				Description: strings.TrimSpace(d.Description),
				Parameters:  ResolveToolSchema(d),
			},
		})
	}
	return out
}

// ConvertAnthropicTools maps definitions to Anthropic tool specs.
func ConvertAnthropicTools(raw any) []AnthropicTool {
	defs := NormalizeToolDefinitions(raw)
	out := make([]AnthropicTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, AnthropicTool{
			Name:        d.Name,
			Description: strings.TrimSpace(d.Description),
			InputSchema: ResolveToolSchema(d),
		})
	}
	return out
}

// BuildToolMetaByName builds a name → MCP attribution lookup, skipping
// tools with neither MCP field set.
func BuildToolMetaByName(raw any) map[string]ToolMeta {
	defs := NormalizeToolDefinitions(raw)
	out := make(map[string]ToolMeta)
	for _, d := range defs {
		server := strings.TrimSpace(d.MCPServerName)
		tool := strings.TrimSpace(d.MCPToolName)
		if server == "" && tool == "" {
			continue
		}
		out[d.Name] = ToolMeta{MCPServerName: server, MCPToolName: tool}
	}
	return out
}
