// Next-edit endpoints: location heuristic and generation.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/byokrelay/gateway/internal/config"
	"github.com/byokrelay/gateway/internal/protocol"
	"github.com/byokrelay/gateway/internal/providers"
	"github.com/byokrelay/gateway/internal/router"
	"github.com/byokrelay/gateway/internal/stream"
)

// handleNextEditLocation builds candidate edit locations from the request's
// diagnostics. No provider call is made. Diagnostics without a resolvable
// start line are skipped. When no diagnostic yields a candidate and the
// request names its own path, a single zero-length candidate at that path
// is returned; otherwise the candidate list is empty.
func (h *Handler) handleNextEditLocation(body any, reshape Reshape) (any, error) {
	limit := protocol.AsInt(protocol.PickAny(body, "num_results", "numResults"))
	if limit <= 0 {
		limit = 1
	}
	if limit > config.MaxNextEditLocations {
		limit = config.MaxNextEditLocations
	}

	candidates := []protocol.CandidateLocation{}
	for _, d := range protocol.PickArray(body, "diagnostics") {
		path := strings.TrimSpace(protocol.PickString(d, "path", "file_path", "filePath"))
		if path == "" {
			path = strings.TrimSpace(protocol.PickString(protocol.PickRecord(d, "item"), "path"))
		}
		if path == "" {
			continue
		}
		rng := diagnosticRange(d)
		start, ok := lineAt(rng, "start", "start_line", "startLine")
		if !ok {
			continue
		}
		stop, ok := lineAt(rng, "stop", "end", "end_line", "endLine")
		if !ok || stop < start {
			stop = start
		}
		candidates = append(candidates, protocol.CandidateLocation{
			Item:      protocol.LocationItem{Path: path, Range: protocol.LineRange{Start: start, Stop: stop}},
			Score:     1,
			DebugInfo: map[string]string{"source": "diagnostic"},
		})
		if len(candidates) >= limit {
			break
		}
	}

	if len(candidates) == 0 {
		if path := strings.TrimSpace(protocol.PickString(body, "path")); path != "" {
			candidates = append(candidates, protocol.CandidateLocation{
				Item:      protocol.LocationItem{Path: path},
				Score:     1,
				DebugInfo: map[string]string{"source": "fallback"},
			})
		}
	}
	return safeReshapeOrErr(reshape, &protocol.NextEditLocationResult{CandidateLocations: candidates})
}

// diagnosticRange finds a diagnostic's range record, checking the flat shape
// first and then the nested item/location shapes some clients send.
func diagnosticRange(d any) map[string]any {
	for _, holder := range []any{d, protocol.PickAny(d, "item"), protocol.PickAny(d, "location")} {
		if rng := protocol.PickRecord(holder, "range"); len(rng) > 0 {
			return rng
		}
	}
	return nil
}

// lineAt reads a line number from a range. The value may be a bare number
// or a position record carrying a "line" field. Missing or non-numeric
// values report false; negatives clamp to 0.
func lineAt(rng map[string]any, keys ...string) (int, bool) {
	v, ok := protocol.Pick(rng, keys...)
	if !ok {
		return 0, false
	}
	if rec, isRec := v.(map[string]any); isRec {
		v = rec["line"]
	}
	n, ok := protocol.AsNumber(v)
	if !ok {
		return 0, false
	}
	if n < 0 {
		return 0, true
	}
	return int(n), true
}

// handleNextEditStream performs one provider call for the suggested
// replacement and yields exactly one generation chunk.
func (h *Handler) handleNextEditStream(ctx context.Context, body any, route router.Route, reshape Reshape, timeout time.Duration) (*stream.Stream[any], error) {
	st, err := providers.SettingsFromProvider(route.Provider)
	if err != nil {
		return nil, err
	}

	start := protocol.AsInt(protocol.PickAny(body, "selection_begin_char", "selectionBeginChar", "char_start", "charStart"))
	if start < 0 {
		start = 0
	}
	end := start
	if v, ok := protocol.Pick(body, "selection_end_char", "selectionEndChar", "char_end", "charEnd"); ok {
		if n := protocol.AsInt(v); n > start {
			end = n
		}
	}

	system, msgs := protocol.BuildMessagesForEndpoint("/next-edit-stream", body)
	text, err := h.completeText(ctx, st, providers.TextRequest{
		Model:    route.Model,
		System:   system,
		Messages: msgs,
		Timeout:  h.timeout(timeout),
	})
	if err != nil {
		return nil, err
	}

	chunk := &protocol.NextEditGenerationChunk{
		Path:          protocol.PickString(body, "path"),
		BlobName:      protocol.PickString(body, "blob_name", "blobName"),
		CharStart:     start,
		CharEnd:       end,
		ExistingCode:  protocol.PickString(body, "selected_text", "selectedText"),
		SuggestedCode: text,
	}
	out, err := safeReshapeOrErr(reshape, chunk)
	if err != nil {
		return nil, err
	}
	return stream.Of(out), nil
}
