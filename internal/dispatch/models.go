// Model listing: official fetch, BYOK synthesis, merge.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/byokrelay/gateway/internal/config"
	"github.com/byokrelay/gateway/internal/protocol"
	"github.com/byokrelay/gateway/internal/router"
)

// buildBYOKModels synthesizes model entries for every configured provider
// model, plus the preferred default model name (empty when no provider can
// resolve one).
func buildBYOKModels(cfg *config.Config) ([]protocol.ModelInfo, string) {
	var models []protocol.ModelInfo
	seen := make(map[string]bool)
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		names := make([]string, 0, len(p.Models)+1)
		if m := p.ResolveDefaultModel(); m != "" {
			names = append(names, m)
		}
		names = append(names, p.Models...)
		for _, m := range names {
			m = strings.TrimSpace(m)
			if m == "" {
				continue
			}
			name := router.BYOKModelName(strings.TrimSpace(p.ID), m)
			if seen[name] {
				continue
			}
			seen[name] = true
			models = append(models, protocol.MakeModelInfo(name))
		}
	}

	defaultModel := ""
	if p := cfg.DefaultProvider(); p != nil {
		if m := p.ResolveDefaultModel(); m != "" {
			defaultModel = router.BYOKModelName(strings.TrimSpace(p.ID), m)
		}
	}
	return models, defaultModel
}

// mergeModels appends BYOK entries to the upstream list. Upstream entries
// pass through verbatim, whatever their shape; only the appended BYOK names
// are deduplicated, against the upstream names and each other.
func mergeModels(upstream []any, byok []protocol.ModelInfo) []any {
	out := make([]any, 0, len(upstream)+len(byok))
	out = append(out, upstream...)

	seen := make(map[string]bool)
	for _, m := range upstream {
		if name := strings.TrimSpace(protocol.PickString(m, "name")); name != "" {
			seen[name] = true
		}
	}
	for _, m := range byok {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		out = append(out, m)
	}
	return out
}

// fetchOfficialModels asks the official backend for its model listing.
func fetchOfficialModels(ctx context.Context, completionURL, token string, timeout time.Duration) (map[string]any, error) {
	base := strings.TrimRight(strings.TrimSpace(completionURL), "/")
	if base == "" {
		return nil, fmt.Errorf("official completion_url not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, base+"/get-models", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("official get-models: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("official get-models status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxRequestBodySize))
	if err != nil {
		return nil, fmt.Errorf("read official get-models: %w", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse official get-models: %w", err)
	}
	return parsed, nil
}

// handleGetModels merges the official model list with synthesized BYOK
// entries. Any upstream failure falls back to a purely local listing; the
// upstream error never reaches the caller.
func (h *Handler) handleGetModels(ctx context.Context, reshape Reshape, timeout time.Duration, upstreamToken string) (any, error) {
	byokModels, defaultModel := buildBYOKModels(h.cfg)

	// Model listing must never block the editor for long.
	t := h.timeout(timeout)
	if t > config.MaxGetModelsTimeout {
		t = config.MaxGetModelsTimeout
	}

	token := upstreamToken
	if strings.TrimSpace(token) == "" {
		token = h.cfg.Official.APIToken
	}

	upstream, err := h.fetchModels(ctx, h.cfg.Official.CompletionURL, token, t)
	if err != nil {
		log.Warn().Err(err).Msg("official model listing unavailable, using local list")
		// The local listing always names a default so the host's model
		// picker has something to select.
		local := defaultModel
		if local == "" {
			if len(byokModels) > 0 {
				local = byokModels[0].Name
			} else {
				local = "unknown"
			}
		}
		return safeReshapeOrErr(reshape, protocol.MakeGetModelsResult(local, byokModels))
	}

	merged := mergeModels(protocol.AsArray(upstream["models"]), byokModels)
	byokNames := make([]string, 0, len(byokModels))
	for _, m := range byokModels {
		byokNames = append(byokNames, m.Name)
	}
	flags := protocol.AsRecord(upstream["feature_flags"])
	upstream["models"] = merged
	upstream["feature_flags"] = protocol.EnsureModelRegistryFeatureFlags(flags, byokNames, defaultModel)
	if defaultModel != "" {
		upstream["default_model"] = defaultModel
	}
	return safeReshapeOrErr(reshape, upstream)
}
