package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceRulesText(t *testing.T) {
	assert.Equal(t, "a\nb", CoerceRulesText([]any{" a ", "", nil, "b"}))
	assert.Equal(t, "scalar", CoerceRulesText("  scalar "))
	assert.Equal(t, "", CoerceRulesText(nil))
	assert.Equal(t, "3", CoerceRulesText(3.0))
}

func TestBuildSystemPromptOrder(t *testing.T) {
	req := &ChatRequest{
		Prefix:              "prefix",
		UserGuidelines:      "user rules",
		WorkspaceGuidelines: "workspace rules",
		Rules:               []any{"rule1", "rule2"},
		AgentMemories:       "memories",
		Mode:                "agent",
		Lang:                "Go",
		Path:                "main.go",
		Suffix:              "tail",
	}
	got := BuildSystemPrompt(req)
	want := strings.Join([]string{
		"prefix",
		"user rules",
		"workspace rules",
		"rule1\nrule2",
		"memories",
		agentModePrompt,
		"The user is working with Go code.",
		"Current file path: main.go",
		"Suffix:\ntail",
	}, "\n\n")
	assert.Equal(t, want, got)
}

func TestBuildSystemPromptSkipsEmptyFragments(t *testing.T) {
	req := &ChatRequest{UserGuidelines: "  ", Lang: "Rust"}
	assert.Equal(t, "The user is working with Rust code.", BuildSystemPrompt(req))
	assert.Equal(t, "", BuildSystemPrompt(&ChatRequest{}))
}

func TestBuildSystemPromptIsPure(t *testing.T) {
	req := &ChatRequest{Prefix: "p", Mode: "AGENT", Rules: []any{"r"}}
	first := BuildSystemPrompt(req)
	second := BuildSystemPrompt(req)
	require.Equal(t, first, second)
	assert.Contains(t, first, agentModePrompt)
}
