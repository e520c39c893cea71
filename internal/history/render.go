// Summary marker rendering.
//
// DESIGN: the marker carries a message template with named placeholders; the
// "end" exchanges are rendered verbatim into a fixed XML-like structure and
// substituted in with literal (non-regex) replacement. A placeholder absent
// from the template is simply not substituted.
package history

import (
	"fmt"
	"strings"

	"github.com/byokrelay/gateway/internal/protocol"
)

// Exchange is the transient rendering form of one past turn. Built from a
// history-summary marker's history_end entries (or a synthetic trailing
// entry carrying leftover tool results); never persisted.
type Exchange struct {
	RequestMessage string
	RequestNodes   []any
	ResponseNodes  []any
}

func normalizeEndExchange(raw any) Exchange {
	return Exchange{
		RequestMessage: protocol.PickString(raw, "request_message", "requestMessage"),
		RequestNodes:   protocol.PickArray(raw, "request_nodes", "requestNodes"),
		ResponseNodes:  protocol.PickArray(raw, "response_nodes", "responseNodes"),
	}
}

type renderedToolUse struct {
	Name  string
	ID    string
	Input string
}

// exchangeContext holds the computed pieces of one exchange render.
type exchangeContext struct {
	UserMessage  string
	ToolResults  []protocol.ToolResult
	Thinking     string
	ResponseText string
	ToolUses     []renderedToolUse
	HasResponse  bool
}

// joinNonEmpty joins items with newlines, stripping each item's trailing
// newlines and skipping blank items.
func joinNonEmpty(items []string) string {
	var b strings.Builder
	for _, raw := range items {
		s := strings.TrimRight(raw, "\n")
		if strings.TrimSpace(s) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s)
	}
	return b.String()
}

func buildExchangeContext(ex Exchange) exchangeContext {
	var thinking, responseText []string
	var toolUses []renderedToolUse
	for _, n := range ex.ResponseNodes {
		switch protocol.NodeType(n) {
		case protocol.ResponseNodeThinking:
			s := protocol.PickString(protocol.PickRecord(n, "thinking", "thinking_node", "thinkingNode"), "summary")
			if strings.TrimSpace(s) != "" {
				thinking = append(thinking, s)
			}
		case protocol.ResponseNodeRawResponse:
			s := protocol.PickString(n, "content")
			if strings.TrimSpace(s) != "" {
				responseText = append(responseText, s)
			}
		case protocol.ResponseNodeToolUse:
			tu := protocol.PickRecord(n, "tool_use", "toolUse")
			id := strings.TrimSpace(protocol.PickString(tu, "tool_use_id", "toolUseId"))
			name := strings.TrimSpace(protocol.PickString(tu, "tool_name", "toolName"))
			if id == "" || name == "" {
				continue
			}
			toolUses = append(toolUses, renderedToolUse{
				Name:  protocol.PickString(tu, "tool_name", "toolName"),
				ID:    protocol.PickString(tu, "tool_use_id", "toolUseId"),
				Input: protocol.PickString(tu, "input_json", "inputJson"),
			})
		}
	}

	ctx := exchangeContext{
		UserMessage:  protocol.TextFromRequestNodes(ex.RequestNodes, ex.RequestMessage),
		ToolResults:  protocol.ToolResultsFromRequestNodes(ex.RequestNodes),
		Thinking:     joinNonEmpty(thinking),
		ResponseText: joinNonEmpty(responseText),
		ToolUses:     toolUses,
	}
	ctx.HasResponse = ctx.Thinking != "" || ctx.ResponseText != "" || len(ctx.ToolUses) > 0
	return ctx
}

// renderExchange serializes one exchange into the fixed XML-like layout the
// summary template embeds.
func renderExchange(ctx exchangeContext) string {
	var out []string
	out = append(out, "<exchange>")
	out = append(out, "  <user_request_or_tool_results>")
	if msg := strings.TrimRight(ctx.UserMessage, "\n"); strings.TrimSpace(msg) != "" {
		out = append(out, msg)
	}
	for _, tr := range ctx.ToolResults {
		id := strings.TrimSpace(tr.ToolUseID)
		if id == "" {
			continue
		}
		out = append(out, fmt.Sprintf("    <tool_result tool_use_id=%q is_error=%q>", id, boolAttr(tr.IsError)))
		if content := strings.TrimRight(tr.Content, "\n"); strings.TrimSpace(content) != "" {
			out = append(out, content)
		}
		out = append(out, "    </tool_result>")
	}
	out = append(out, "  </user_request_or_tool_results>")
	if ctx.HasResponse {
		out = append(out, "  <agent_response_or_tool_uses>")
		if thinking := strings.TrimRight(ctx.Thinking, "\n"); strings.TrimSpace(thinking) != "" {
			out = append(out, "    <thinking>")
			out = append(out, thinking)
			out = append(out, "    </thinking>")
		}
		if text := strings.TrimRight(ctx.ResponseText, "\n"); strings.TrimSpace(text) != "" {
			out = append(out, text)
		}
		for _, tu := range ctx.ToolUses {
			name := strings.TrimSpace(tu.Name)
			id := strings.TrimSpace(tu.ID)
			if name == "" || id == "" {
				continue
			}
			out = append(out, fmt.Sprintf("    <tool_use name=%q tool_use_id=%q>", name, id))
			if input := strings.TrimRight(tu.Input, "\n"); strings.TrimSpace(input) != "" {
				out = append(out, input)
			}
			out = append(out, "    </tool_use>")
		}
		out = append(out, "  </agent_response_or_tool_uses>")
	}
	out = append(out, "</exchange>")
	return strings.Join(out, "\n")
}

func boolAttr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// RenderExchanges serializes past turns into the exchange layout, as input
// for summarization prompts. Unlike the marker rendering, a turn with no
// raw-response nodes falls back to its stored response_text here: the
// summarizer should see the assistant's side even for node-less clients.
func RenderExchanges(items []protocol.ChatHistoryItem) string {
	rendered := make([]string, 0, len(items))
	for _, it := range items {
		ctx := buildExchangeContext(Exchange{
			RequestMessage: it.RequestMessage,
			RequestNodes:   it.MergedRequestNodes(),
			ResponseNodes:  it.ResponseNodes,
		})
		if ctx.ResponseText == "" {
			if text := strings.TrimSpace(it.ResponseText); text != "" {
				ctx.ResponseText = text
				ctx.HasResponse = true
			}
		}
		rendered = append(rendered, renderExchange(ctx))
	}
	return strings.Join(rendered, "\n")
}

// RenderSummaryValue renders a history-summary marker payload into flat
// text. extraToolResults are tool-result nodes found alongside the marker;
// they are appended as a synthetic trailing exchange. Returns false when the
// marker has no usable message template.
func RenderSummaryValue(value any, extraToolResults []any) (string, bool) {
	template := protocol.PickString(value, "message_template", "messageTemplate")
	if strings.TrimSpace(template) == "" {
		return "", false
	}

	summaryText := protocol.PickString(value, "summary_text", "summaryText")
	summarizationRequestID := protocol.PickString(value, "summarization_request_id", "summarizationRequestId")
	droppedNum := protocol.AsInt(protocol.PickAny(value, "history_beginning_dropped_num_exchanges", "historyBeginningDroppedNumExchanges"))
	abridged := protocol.PickString(value, "history_middle_abridged_text", "historyMiddleAbridgedText")

	rawEnd := protocol.PickArray(value, "history_end", "historyEnd")
	end := make([]Exchange, 0, len(rawEnd)+1)
	for _, e := range rawEnd {
		end = append(end, normalizeEndExchange(e))
	}
	if len(extraToolResults) > 0 {
		end = append(end, Exchange{RequestNodes: extraToolResults})
	}

	rendered := make([]string, 0, len(end))
	for _, e := range end {
		rendered = append(rendered, renderExchange(buildExchangeContext(e)))
	}

	out := template
	for _, sub := range [][2]string{
		{"{summary}", summaryText},
		{"{summarization_request_id}", summarizationRequestID},
		{"{beginning_part_dropped_num_exchanges}", fmt.Sprintf("%d", droppedNum)},
		{"{middle_part_abridged}", abridged},
		{"{end_part_full}", strings.Join(rendered, "\n")},
		{"{abridged_history}", abridged},
	} {
		out = strings.ReplaceAll(out, sub[0], sub[1])
	}
	return out, true
}
