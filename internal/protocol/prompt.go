package protocol

import (
	"fmt"
	"strings"
)

// agentModePrompt is appended when the request mode is AGENT.
const agentModePrompt = "You are an AI coding assistant with access to tools. Use tools when needed to complete tasks."

// CoerceRulesText flattens the rules field: array values are trimmed,
// falsy-filtered and newline-joined; scalar values are stringified.
func CoerceRulesText(rules any) string {
	if arr, ok := rules.([]any); ok {
		parts := make([]string, 0, len(arr))
		for _, v := range arr {
			if s := strings.TrimSpace(AsString(v)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	}
	return strings.TrimSpace(AsString(rules))
}

// BuildSystemPrompt concatenates the request's prompt fragments in a fixed
// order, joined with blank lines. Empty fragments are skipped. The order is
// part of the contract; provider prompt quality depends on it.
func BuildSystemPrompt(req *ChatRequest) string {
	var parts []string
	push := func(s string) {
		if t := strings.TrimSpace(s); t != "" {
			parts = append(parts, t)
		}
	}

	push(req.Prefix)
	push(req.UserGuidelines)
	push(req.WorkspaceGuidelines)
	push(CoerceRulesText(req.Rules))
	push(req.AgentMemories)
	if strings.EqualFold(strings.TrimSpace(req.Mode), "AGENT") {
		parts = append(parts, agentModePrompt)
	}
	if lang := strings.TrimSpace(req.Lang); lang != "" {
		parts = append(parts, fmt.Sprintf("The user is working with %s code.", lang))
	}
	if path := strings.TrimSpace(req.Path); path != "" {
		parts = append(parts, fmt.Sprintf("Current file path: %s", path))
	}
	if strings.TrimSpace(req.Suffix) != "" {
		parts = append(parts, strings.TrimSpace("Suffix:\n"+req.Suffix))
	}

	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}
