// Package summarize shrinks oversized chat histories before a chat stream.
//
// DESIGN: summarization is strictly best-effort. Every failure path (no
// tokenizer, cache trouble, provider error, empty summary) logs at warn and
// leaves the history untouched; the request proceeds with whatever history
// compaction alone produces. When it does run, the older exchanges are
// summarized by the routed provider and the result is injected as an
// in-band summary marker, so the compaction engine performs the actual
// collapse through its one normal path.
package summarize

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/byokrelay/gateway/internal/config"
	"github.com/byokrelay/gateway/internal/history"
	"github.com/byokrelay/gateway/internal/protocol"
	"github.com/byokrelay/gateway/internal/providers"
	"github.com/byokrelay/gateway/internal/router"
)

const tokenizerEncoding = "cl100k_base"

const summarySystemPrompt = "You summarize conversations between a user and an AI coding assistant. " +
	"Produce a compact summary that preserves: the user's goals, decisions made, " +
	"files and symbols touched, tool activity and its outcomes, and any unresolved " +
	"problems. Write plain prose. Do not add commentary about the summarization itself."

// summaryMessageTemplate is the message template embedded in injected
// summary markers. The compaction engine substitutes the placeholders when
// it collapses the history.
const summaryMessageTemplate = `Earlier conversation history was summarized to stay within the context window. ` +
	`{beginning_part_dropped_num_exchanges} earlier exchanges were replaced by this summary (request {summarization_request_id}).

<summary>
{summary}
</summary>
{end_part_full}`

// CompleteFunc matches providers.CompleteText; injectable for tests.
type CompleteFunc func(ctx context.Context, st providers.Settings, req providers.TextRequest) (string, error)

// Summarizer owns the tokenizer, the summary cache and the provider call.
type Summarizer struct {
	cfg      config.SummarizeConfig
	timeout  time.Duration
	enc      *tiktoken.Tiktoken
	cache    *cache
	complete CompleteFunc
}

// New builds a Summarizer from config. The tokenizer and cache are both
// optional at runtime: losing either degrades to ratio-based estimation and
// uncached summaries.
func New(cfg config.SummarizeConfig, timeout time.Duration) *Summarizer {
	s := &Summarizer{cfg: cfg, timeout: timeout, complete: providers.CompleteText}
	if !cfg.Enabled {
		return s
	}
	enc, err := tiktoken.GetEncoding(tokenizerEncoding)
	if err != nil {
		log.Warn().Err(err).Str("encoding", tokenizerEncoding).Msg("tokenizer unavailable, estimating tokens by length")
	} else {
		s.enc = enc
	}
	if path := strings.TrimSpace(cfg.CachePath); path != "" {
		c, err := openCache(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("summary cache unavailable")
		} else {
			s.cache = c
		}
	}
	return s
}

// Close releases the summary cache.
func (s *Summarizer) Close() {
	if s != nil {
		s.cache.Close()
	}
}

func (s *Summarizer) estimateTokens(text string) int {
	if s.enc != nil {
		return len(s.enc.Encode(text, nil, nil))
	}
	return len(text) / config.TokenEstimateRatio
}

// MaybeSummarizeAndCompact summarizes oversized history and always compacts.
// The compaction runs even when summarization is skipped or fails, so the
// caller gets the in-band marker semantics either way.
func (s *Summarizer) MaybeSummarizeAndCompact(ctx context.Context, route router.Route, req *protocol.ChatRequest) {
	defer func() {
		req.ChatHistory = history.Compact(req.ChatHistory)
	}()

	if s == nil || !s.cfg.Enabled {
		return
	}
	if route.Mode != router.ModeBYOK || route.Provider == nil {
		return
	}
	dropped := len(req.ChatHistory) - s.cfg.KeepRecentExchanges
	if dropped <= 0 {
		return
	}
	rendered := history.RenderExchanges(req.ChatHistory)
	if s.estimateTokens(rendered) < s.cfg.TriggerTokens {
		return
	}

	summary, ok := s.cache.Get(req.ConversationID, dropped)
	if !ok {
		var err error
		summary, err = s.summarizeExchanges(ctx, route, req.ChatHistory[:dropped])
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", req.ConversationID).Msg("history summarization failed")
			return
		}
		if err := s.cache.Put(req.ConversationID, dropped, summary); err != nil {
			log.Warn().Err(err).Msg("summary cache write failed")
		}
	}

	// The marker goes into the oldest kept exchange. Compaction truncates
	// at that item, so the kept exchanges survive as structured history and
	// everything older collapses into the rendered summary text.
	anchor := &req.ChatHistory[dropped]
	anchor.RequestNodes = append([]any{summaryMarkerNode(summary, dropped)}, anchor.RequestNodes...)
	log.Info().
		Str("conversation_id", req.ConversationID).
		Int("dropped_exchanges", dropped).
		Msg("history summarized")
}

func (s *Summarizer) summarizeExchanges(ctx context.Context, route router.Route, older []protocol.ChatHistoryItem) (string, error) {
	st, err := providers.SettingsFromProvider(route.Provider)
	if err != nil {
		return "", err
	}
	model := strings.TrimSpace(s.cfg.Model)
	if model == "" {
		model = route.Model
	}
	text, err := s.complete(ctx, st, providers.TextRequest{
		Model:  model,
		System: summarySystemPrompt,
		Messages: []protocol.Message{
			{Role: "user", Content: "Summarize the following exchanges:\n\n" + history.RenderExchanges(older)},
		},
		Timeout: s.timeout,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptySummary
	}
	return text, nil
}

var errEmptySummary = errors.New("provider returned an empty summary")

// summaryMarkerNode builds the in-band marker consumed by compaction.
func summaryMarkerNode(summary string, dropped int) map[string]any {
	return map[string]any{
		"id":      0,
		"type":    protocol.RequestNodeHistorySummary,
		"content": "",
		"history_summary_node": map[string]any{
			"summary_text":                            summary,
			"summarization_request_id":                uuid.NewString(),
			"message_template":                        summaryMessageTemplate,
			"history_beginning_dropped_num_exchanges": dropped,
			"history_middle_abridged_text":            "",
			"history_end":                             []any{},
		},
	}
}
