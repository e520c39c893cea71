// Package protocol implements the editor's structured chat representation:
// tolerant normalization of loosely-typed request bodies, tool definition
// translation, system prompt assembly, and extraction of assistant output
// from response node streams.
//
// DESIGN: Request bodies arrive as decoded JSON (any). Historical clients
// have shipped several field-naming conventions (snake_case, camelCase and
// legacy names), so every lookup goes through an ordered alias list instead
// of a single struct tag. Malformed values never raise; they normalize to
// safe defaults.
package protocol

// Request node type tags. Nodes are discriminated by a numeric tag carried
// in "type" (aliases: "node_type", "nodeType").
const (
	RequestNodeText           = 0
	RequestNodeToolResult     = 1
	RequestNodeHistorySummary = 5
)

// Response node type tags.
const (
	ResponseNodeRawResponse      = 0
	ResponseNodeThinking         = 2
	ResponseNodeToolUse          = 5
	ResponseNodeToolUseStart     = 6
	ResponseNodeMainTextFinished = 8
)

// NodeTypeUnknown is returned for nodes whose tag is missing or not numeric.
// Unknown nodes are carried through untouched, never silently re-tagged.
const NodeTypeUnknown = -1

// NodeType returns the numeric type tag of a node, or NodeTypeUnknown.
func NodeType(node any) int {
	v, ok := Pick(node, "type", "node_type", "nodeType")
	if !ok {
		return NodeTypeUnknown
	}
	n, ok := asNumber(v)
	if !ok {
		return NodeTypeUnknown
	}
	return int(n)
}

// NodeID returns the numeric id of a node, defaulting to 0.
func NodeID(node any) int {
	n, ok := asNumber(PickAny(node, "id"))
	if !ok {
		return 0
	}
	return int(n)
}
