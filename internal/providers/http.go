// HTTP plumbing shared by both provider families.
package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/byokrelay/gateway/internal/config"
	"github.com/byokrelay/gateway/internal/utils"
)

var httpClient = &http.Client{
	// No client-level timeout: streams outlive any sane fixed value.
	// Deadlines come from the per-call context.
	Transport: http.DefaultTransport,
}

// endpointURL joins a provider base URL with a wire path, tolerating bases
// that already include the path (users paste full endpoint URLs).
func endpointURL(base, path string) string {
	b := strings.TrimRight(strings.TrimSpace(base), "/")
	if b == "" {
		return path
	}
	if strings.HasSuffix(b, path) {
		return b
	}
	return b + path
}

// applyRequestDefaults merges provider request_defaults into the payload as
// raw JSON patches. Keys already present in the payload are overwritten;
// nested paths are not interpreted (a key is one top-level field).
func applyRequestDefaults(payload []byte, defaults map[string]any) ([]byte, error) {
	out := payload
	for k, v := range defaults {
		if strings.TrimSpace(k) == "" {
			continue
		}
		patched, err := sjson.SetBytesOptions(out, k, v, &sjson.Options{ReplaceInPlace: true})
		if err != nil {
			return nil, fmt.Errorf("apply request default %q: %w", k, err)
		}
		out = patched
	}
	return out, nil
}

// postJSON sends a provider call. The timeout bounds the whole call,
// including any stream read the caller performs on the returned body.
func postJSON(ctx context.Context, url string, payload any, defaults map[string]any, headers map[string]string, timeout time.Duration) (*http.Response, context.CancelFunc, error) {
	body, err := utils.MarshalNoEscape(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}
	body, err = applyRequestDefaults(body, defaults)
	if err != nil {
		return nil, nil, err
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if strings.TrimSpace(k) == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("provider request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview := readBodyPreview(resp.Body)
		_ = resp.Body.Close()
		cancel()
		return nil, nil, fmt.Errorf("provider status %d: %s", resp.StatusCode, preview)
	}
	return resp, cancel, nil
}

// readBodyPreview reads a bounded error-body preview for logs and errors.
func readBodyPreview(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, config.MaxErrorBodyLogLen))
	preview := strings.TrimSpace(string(raw))
	preview = strings.ReplaceAll(preview, "\n", " ")
	if preview == "" {
		return "<empty body>"
	}
	return preview
}
