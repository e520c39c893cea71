// Package history bounds conversation growth via the in-band compaction
// protocol: a previously-computed summary marker embedded in the node
// stream collapses everything that came before it.
//
// DESIGN: Compact is the only entry point the dispatch layer needs. It
// returns the compacted sequence instead of splicing the caller's slice,
// so the caller decides whether to replace its stored reference.
package history

import (
	"github.com/byokrelay/gateway/internal/protocol"
)

// hasSummaryNode reports whether any node is a history-summary marker with
// a non-null summary payload.
func hasSummaryNode(nodes []any) bool {
	for _, n := range nodes {
		if protocol.NodeType(n) != protocol.RequestNodeHistorySummary {
			continue
		}
		if v, ok := protocol.Pick(n, "history_summary_node", "historySummaryNode"); ok && v != nil {
			return true
		}
	}
	return false
}

// itemHasSummary checks all three aliased node slots of a history item.
func itemHasSummary(it *protocol.ChatHistoryItem) bool {
	return hasSummaryNode(it.RequestNodes) ||
		hasSummaryNode(it.StructuredRequestNodes) ||
		hasSummaryNode(it.Nodes)
}

// Compact truncates the history at the most recent item carrying a
// resolvable summary marker (the anchor) and replaces the marker with its
// rendered text. Items without a marker anywhere are returned unchanged.
//
// Within the anchor item the three aliased node slots are merged into one
// ordered sequence and cleared; tool results found alongside the marker are
// folded into the rendered text as a synthetic trailing exchange so their
// content is not lost.
func Compact(items []protocol.ChatHistoryItem) []protocol.ChatHistoryItem {
	if len(items) == 0 {
		return items
	}

	anchor := -1
	for i := len(items) - 1; i >= 0; i-- {
		if itemHasSummary(&items[i]) {
			anchor = i
			break
		}
	}
	if anchor < 0 {
		return items
	}
	items = items[anchor:]

	first := &items[0]
	merged := first.MergedRequestNodes()
	first.RequestNodes = nil
	first.StructuredRequestNodes = nil
	first.Nodes = nil

	summaryPos := -1
	for i, n := range merged {
		if protocol.NodeType(n) != protocol.RequestNodeHistorySummary {
			continue
		}
		if v, ok := protocol.Pick(n, "history_summary_node", "historySummaryNode"); ok && v != nil {
			summaryPos = i
			break
		}
	}
	if summaryPos < 0 {
		first.RequestNodes = merged
		return items
	}

	summaryID := protocol.NodeID(merged[summaryPos])
	summaryValue := protocol.PickAny(merged[summaryPos], "history_summary_node", "historySummaryNode")

	var toolResults, others []any
	for _, n := range merged {
		switch protocol.NodeType(n) {
		case protocol.RequestNodeHistorySummary:
			// the marker is consumed; later duplicates are dropped too
		case protocol.RequestNodeToolResult:
			if v, ok := protocol.Pick(n, "tool_result_node", "toolResultNode"); ok && v != nil {
				toolResults = append(toolResults, n)
			}
		default:
			others = append(others, n)
		}
	}

	text, ok := RenderSummaryValue(summaryValue, toolResults)
	if !ok {
		first.RequestNodes = others
		return items
	}

	summaryTextNode := map[string]any{
		"id":      summaryID,
		"type":    protocol.RequestNodeText,
		"content": "",
		"text_node": map[string]any{
			"content": text,
		},
	}
	first.RequestNodes = append([]any{summaryTextNode}, others...)
	return items
}
