// Anthropic wire calls (messages protocol).
package providers

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/byokrelay/gateway/internal/config"
	"github.com/byokrelay/gateway/internal/protocol"
	"github.com/byokrelay/gateway/internal/stream"
)

const (
	anthropicMessagesPath = "/v1/messages"
	anthropicVersion      = "2023-06-01"
)

func anthropicHeaders(st Settings) map[string]string {
	headers := map[string]string{
		"x-api-key":         st.APIKey,
		"anthropic-version": anthropicVersion,
	}
	for k, v := range st.ExtraHeaders {
		headers[k] = v
	}
	return headers
}

func anthropicPayload(model, system string, messages []map[string]any) map[string]any {
	payload := map[string]any{
		"model":      model,
		"max_tokens": config.DefaultAnthropicMaxTokens,
		"messages":   messages,
	}
	if system != "" {
		payload["system"] = system
	}
	return payload
}

func anthropicCompleteText(ctx context.Context, st Settings, req TextRequest) (string, error) {
	payload := anthropicPayload(req.Model, req.System, simpleAnthropicMessages(req.Messages))
	resp, cancel, err := postJSON(ctx, endpointURL(st.BaseURL, anthropicMessagesPath), payload, st.RequestDefaults, anthropicHeaders(st), req.Timeout)
	if err != nil {
		return "", err
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var parts []string
	gjson.GetBytes(body, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			if text := block.Get("text").String(); text != "" {
				parts = append(parts, text)
			}
		}
		return true
	})
	return strings.Join(parts, ""), nil
}

func anthropicStreamTextDeltas(ctx context.Context, st Settings, req TextRequest) (*stream.Stream[string], error) {
	payload := anthropicPayload(req.Model, req.System, simpleAnthropicMessages(req.Messages))
	payload["stream"] = true
	resp, cancel, err := postJSON(ctx, endpointURL(st.BaseURL, anthropicMessagesPath), payload, st.RequestDefaults, anthropicHeaders(st), req.Timeout)
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
			event := gjson.ParseBytes(data)
			switch event.Get("type").String() {
			case "content_block_delta":
				if event.Get("delta.type").String() != "text_delta" {
					continue
				}
				text := event.Get("delta.text").String()
				if text == "" {
					continue
				}
				if !w.Send(ctx, text) {
					w.Close(ctx.Err())
					return
				}
			case "message_stop":
				w.Close(nil)
				return
			}
		}
	}()
	return out, nil
}

// anthropicToolAcc accumulates one tool_use content block across
// input_json_delta events.
type anthropicToolAcc struct {
	ID   string
	Name string
	JSON strings.Builder
}

func anthropicStreamChatChunks(ctx context.Context, st Settings, req ChatRequest) (*stream.Stream[*protocol.ChatChunk], error) {
	payload := anthropicPayload(req.Model, req.System, anthropicChatMessages(req.Messages))
	payload["stream"] = true
	if tools := protocol.ConvertAnthropicTools(req.ToolDefinitions); len(tools) > 0 {
		payload["tools"] = tools
	}
	resp, cancel, err := postJSON(ctx, endpointURL(st.BaseURL, anthropicMessagesPath), payload, st.RequestDefaults, anthropicHeaders(st), req.Timeout)
	if err != nil {
		return nil, err
	}

	out, w := stream.New[*protocol.ChatChunk]()
	go func() {
		defer cancel()
		defer func() { _ = resp.Body.Close() }()

		var fullText strings.Builder
		open := make(map[int]*anthropicToolAcc)
		sawToolUse := false
		stopReason := ""

		send := func(c *protocol.ChatChunk) bool {
			if !w.Send(ctx, c) {
				w.Close(ctx.Err())
				return false
			}
			return true
		}

		finish := func() {
			// Blocks the upstream never closed are flushed in index order
			// so a truncated stream still surfaces the calls it started.
			indexes := make([]int, 0, len(open))
			for i := range open {
				indexes = append(indexes, i)
			}
			sort.Ints(indexes)
			for _, i := range indexes {
				a := open[i]
				sawToolUse = true
				if !send(protocol.MakeToolUseChunk(toolUseInfo(a.ID, a.Name, a.JSON.String(), i, req.ToolMeta), false)) {
					return
				}
			}
			stop := stopReason
			if stop == "" {
				stop = protocol.StopReasonEndTurn
				if sawToolUse {
					stop = protocol.StopReasonToolUse
				}
			}
			if send(protocol.MakeChatChunk(strings.TrimSpace(fullText.String()), stop)) {
				w.Close(nil)
			}
		}

		sse := newSSEReader(resp.Body)
		for {
			data, err := sse.Next()
			if err == io.EOF {
				finish()
				return
			}
			if err != nil {
				w.Close(fmt.Errorf("read stream: %w", err))
				return
			}

			event := gjson.ParseBytes(data)
			switch event.Get("type").String() {
			case "content_block_start":
				block := event.Get("content_block")
				if block.Get("type").String() != "tool_use" {
					continue
				}
				idx := int(event.Get("index").Int())
				a := &anthropicToolAcc{
					ID:   block.Get("id").String(),
					Name: block.Get("name").String(),
				}
				open[idx] = a
				if req.SupportToolUseStart && a.Name != "" {
					if !send(protocol.MakeToolUseChunk(toolUseInfo(a.ID, a.Name, "", idx, req.ToolMeta), true)) {
						return
					}
				}
			case "content_block_delta":
				idx := int(event.Get("index").Int())
				switch event.Get("delta.type").String() {
				case "text_delta":
					text := event.Get("delta.text").String()
					if text == "" {
						continue
					}
					fullText.WriteString(text)
					if !send(protocol.MakeTextDeltaChunk(text)) {
						return
					}
				case "input_json_delta":
					if a, ok := open[idx]; ok {
						a.JSON.WriteString(event.Get("delta.partial_json").String())
					}
				}
			case "content_block_stop":
				idx := int(event.Get("index").Int())
				a, ok := open[idx]
				if !ok {
					continue
				}
				delete(open, idx)
				if a.Name == "" {
					continue
				}
				sawToolUse = true
				if !send(protocol.MakeToolUseChunk(toolUseInfo(a.ID, a.Name, a.JSON.String(), idx, req.ToolMeta), false)) {
					return
				}
			case "message_delta":
				if sr := event.Get("delta.stop_reason").String(); sr != "" {
					stopReason = sr
				}
			case "message_stop":
				finish()
				return
			}
		}
	}()
	return out, nil
}
