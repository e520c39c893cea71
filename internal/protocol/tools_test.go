package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeToolDefinitionsDropsNameless(t *testing.T) {
	raw := []any{
		map[string]any{"name": "read_file", "description": "reads"},
		map[string]any{"name": "   "},
		map[string]any{"description": "orphan"},
		map[string]any{"name": "read_file"}, // duplicate survives
	}
	defs := NormalizeToolDefinitions(raw)
	require.Len(t, defs, 2)
	assert.Equal(t, "read_file", defs[0].Name)
	assert.Equal(t, "read_file", defs[1].Name)
}

func TestResolveToolSchema(t *testing.T) {
	structured := map[string]any{"type": "object", "properties": map[string]any{"p": map[string]any{}}}

	got := ResolveToolSchema(ToolDefinition{InputSchema: structured, InputSchemaJSON: `{"ignored":true}`})
	assert.Equal(t, structured, got)

	got = ResolveToolSchema(ToolDefinition{InputSchemaJSON: `{"type":"object","properties":{"x":{}}}`})
	assert.Equal(t, "object", got["type"])

	// Bad JSON and array JSON both fall back silently.
	fallback := map[string]any{"type": "object", "properties": map[string]any{}}
	assert.Equal(t, fallback, ResolveToolSchema(ToolDefinition{InputSchemaJSON: "not json"}))
	assert.Equal(t, fallback, ResolveToolSchema(ToolDefinition{InputSchemaJSON: `[1,2]`}))
	assert.Equal(t, fallback, ResolveToolSchema(ToolDefinition{}))
}

func TestConvertOpenAITools(t *testing.T) {
	raw := []any{map[string]any{"name": "grep", "input_schema_json": `{"type":"object"}`}}
	tools := ConvertOpenAITools(raw)
	require.Len(t, tools, 1)
	assert.Equal(t, "function", tools[0].Type)
	assert.Equal(t, "grep", tools[0].Function.Name)
	assert.Empty(t, tools[0].Function.Description)
	assert.Equal(t, "object", tools[0].Function.Parameters["type"])
}

func TestConvertAnthropicTools(t *testing.T) {
	raw := []any{map[string]any{"name": "grep", "description": " search "}}
	tools := ConvertAnthropicTools(raw)
	require.Len(t, tools, 1)
	assert.Equal(t, "grep", tools[0].Name)
	assert.Equal(t, "search", tools[0].Description)
	assert.NotNil(t, tools[0].InputSchema)
}

func TestBuildToolMetaByName(t *testing.T) {
	raw := []any{
		map[string]any{"name": "plain"},
		map[string]any{"name": "mcp_tool", "mcp_server_name": "srv", "mcpToolName": "orig"},
	}
	meta := BuildToolMetaByName(raw)
	require.Len(t, meta, 1)
	assert.Equal(t, ToolMeta{MCPServerName: "srv", MCPToolName: "orig"}, meta["mcp_tool"])
}
