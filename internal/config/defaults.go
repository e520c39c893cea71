// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined
// here. This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// SERVER DEFAULTS
// =============================================================================

// DefaultServerAddr is the listen address when none is configured.
const DefaultServerAddr = "127.0.0.1:8787"

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 1 * time.Minute

// DefaultServerWriteTimeout for the HTTP server (safe for streaming).
const DefaultServerWriteTimeout = 10 * time.Minute

// MaxRequestBodySize is the maximum allowed request body (50MB).
const MaxRequestBodySize = 50 * 1024 * 1024

// =============================================================================
// UPSTREAM CALLS
// =============================================================================

// DefaultUpstreamTimeout is used when the caller supplies no timeout and
// timeouts.upstream_ms is unset.
const DefaultUpstreamTimeout = 120 * time.Second

// MaxGetModelsTimeout clamps the official get-models fetch regardless of
// the caller's timeout, so model listing never blocks the editor for long.
const MaxGetModelsTimeout = 12 * time.Second

// MaxErrorBodyLogLen limits upstream error bodies in logs.
const MaxErrorBodyLogLen = 300

// DefaultAnthropicMaxTokens is the max_tokens sent on Anthropic calls when
// the provider's request_defaults do not override it. The messages API
// rejects requests without one.
const DefaultAnthropicMaxTokens = 8192

// =============================================================================
// SUMMARIZATION DEFAULTS
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token,
// used when the tokenizer cannot load its encoding.
const TokenEstimateRatio = 4

// DefaultSummaryTriggerTokens is the history size, in estimated tokens,
// above which auto-summarization kicks in before a chat stream.
const DefaultSummaryTriggerTokens = 60000

// DefaultKeepRecentExchanges is how many trailing exchanges stay verbatim
// when the older history is summarized.
const DefaultKeepRecentExchanges = 4

// =============================================================================
// NEXT EDIT DEFAULTS
// =============================================================================

// MaxNextEditLocations caps candidate locations built from diagnostics.
const MaxNextEditLocations = 6
