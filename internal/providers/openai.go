// OpenAI-compatible wire calls (chat completions protocol).
package providers

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/byokrelay/gateway/internal/protocol"
	"github.com/byokrelay/gateway/internal/stream"
)

const openAIChatPath = "/chat/completions"

func openAIHeaders(st Settings) map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + st.APIKey,
	}
	for k, v := range st.ExtraHeaders {
		headers[k] = v
	}
	return headers
}

func openAICompleteText(ctx context.Context, st Settings, req TextRequest) (string, error) {
	payload := map[string]any{
		"model":    req.Model,
		"messages": simpleOpenAIMessages(req.System, req.Messages),
	}
	resp, cancel, err := postJSON(ctx, endpointURL(st.BaseURL, openAIChatPath), payload, st.RequestDefaults, openAIHeaders(st), req.Timeout)
	if err != nil {
		return "", err
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return gjson.GetBytes(body, "choices.0.message.content").String(), nil
}

func openAIStreamTextDeltas(ctx context.Context, st Settings, req TextRequest) (*stream.Stream[string], error) {
	payload := map[string]any{
		"model":    req.Model,
		"messages": simpleOpenAIMessages(req.System, req.Messages),
		"stream":   true,
	}
	resp, cancel, err := postJSON(ctx, endpointURL(st.BaseURL, openAIChatPath), payload, st.RequestDefaults, openAIHeaders(st), req.Timeout)
	if err != nil {
		return nil, err
	}

	out, w := stream.New[string]()
	go func() {
		defer cancel()
		defer func() { _ = resp.Body.Close() }()
		sse := newSSEReader(resp.Body)
		for {
			data, err := sse.Next()
			if err == io.EOF {
				w.Close(nil)
				return
			}
			if err != nil {
				w.Close(fmt.Errorf("read stream: %w", err))
				return
			}
			if string(data) == "[DONE]" {
				w.Close(nil)
				return
			}
			delta := gjson.GetBytes(data, "choices.0.delta.content").String()
			if delta == "" {
				continue
			}
			if !w.Send(ctx, delta) {
				w.Close(ctx.Err())
				return
			}
		}
	}()
	return out, nil
}

// openAIToolAcc accumulates one streamed tool call across delta events.
type openAIToolAcc struct {
	ID      string
	Name    string
	Args    strings.Builder
	Started bool
}

func openAIStreamChatChunks(ctx context.Context, st Settings, req ChatRequest) (*stream.Stream[*protocol.ChatChunk], error) {
	payload := map[string]any{
		"model":    req.Model,
		"messages": openAIChatMessages(req.System, req.Messages),
		"stream":   true,
	}
	if tools := protocol.ConvertOpenAITools(req.ToolDefinitions); len(tools) > 0 {
		payload["tools"] = tools
	}
	resp, cancel, err := postJSON(ctx, endpointURL(st.BaseURL, openAIChatPath), payload, st.RequestDefaults, openAIHeaders(st), req.Timeout)
	if err != nil {
		return nil, err
	}

	out, w := stream.New[*protocol.ChatChunk]()
	go func() {
		defer cancel()
		defer func() { _ = resp.Body.Close() }()

		var fullText strings.Builder
		acc := make(map[int]*openAIToolAcc)
		finish := ""

		send := func(c *protocol.ChatChunk) bool {
			if !w.Send(ctx, c) {
				w.Close(ctx.Err())
				return false
			}
			return true
		}

		flush := func() {
			indexes := make([]int, 0, len(acc))
			for i := range acc {
				indexes = append(indexes, i)
			}
			sort.Ints(indexes)
			for _, i := range indexes {
				a := acc[i]
				if strings.TrimSpace(a.Name) == "" {
					continue
				}
				if !send(protocol.MakeToolUseChunk(toolUseInfo(a.ID, a.Name, a.Args.String(), i, req.ToolMeta), false)) {
					return
				}
			}
			stop := protocol.StopReasonEndTurn
			if len(acc) > 0 || finish == "tool_calls" {
				stop = protocol.StopReasonToolUse
			}
			if send(protocol.MakeChatChunk(strings.TrimSpace(fullText.String()), stop)) {
				w.Close(nil)
			}
		}

		sse := newSSEReader(resp.Body)
		for {
			data, err := sse.Next()
			if err == io.EOF {
				flush()
				return
			}
			if err != nil {
				w.Close(fmt.Errorf("read stream: %w", err))
				return
			}
			if string(data) == "[DONE]" {
				flush()
				return
			}

			if fr := gjson.GetBytes(data, "choices.0.finish_reason").String(); fr != "" {
				finish = fr
			}
			delta := gjson.GetBytes(data, "choices.0.delta")
			if content := delta.Get("content").String(); content != "" {
				fullText.WriteString(content)
				if !send(protocol.MakeTextDeltaChunk(content)) {
					return
				}
			}
			aborted := false
			delta.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
				idx := int(tc.Get("index").Int())
				a, ok := acc[idx]
				if !ok {
					a = &openAIToolAcc{}
					acc[idx] = a
				}
				if id := tc.Get("id").String(); id != "" {
					a.ID = id
				}
				if name := tc.Get("function.name").String(); name != "" {
					a.Name = name
				}
				a.Args.WriteString(tc.Get("function.arguments").String())

				if !a.Started && a.Name != "" && req.SupportToolUseStart {
					a.Started = true
					if !send(protocol.MakeToolUseChunk(toolUseInfo(a.ID, a.Name, "", idx, req.ToolMeta), true)) {
						aborted = true
						return false
					}
				}
				return true
			})
			if aborted {
				return
			}
		}
	}()
	return out, nil
}

// toolUseInfo builds a tool-use node payload, synthesizing an id when the
// provider omitted one and attaching MCP attribution when known.
func toolUseInfo(id, name, args string, index int, meta map[string]protocol.ToolMeta) protocol.ToolUseInfo {
	if strings.TrimSpace(id) == "" {
		id = fmt.Sprintf("tool-%d", index+1)
	}
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	info := protocol.ToolUseInfo{ToolUseID: id, ToolName: name, InputJSON: args}
	if m, ok := meta[name]; ok {
		info.MCPServerName = m.MCPServerName
		info.MCPToolName = m.MCPToolName
	}
	return info
}
