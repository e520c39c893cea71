// Package gateway is the HTTP front over the endpoint dispatch layer.
//
// DESIGN: Main request flow:
//   - handleOneShot(): one-shot endpoints, JSON in / JSON out
//   - handleStream():  streaming endpoints, JSON in / SSE out
//
// "Not handled" is a signal, not an error: the host shim receives
// {"not_handled": true} with a 502 and proxies the request to the official
// backend unchanged. Only routing-disabled and configuration failures
// surface as gateway errors.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/byokrelay/gateway/internal/config"
	"github.com/byokrelay/gateway/internal/dispatch"
	"github.com/byokrelay/gateway/internal/protocol"
	"github.com/byokrelay/gateway/internal/utils"
)

// Server wires the dispatch handler behind an HTTP listener.
type Server struct {
	cfg        *config.Config
	dispatcher *dispatch.Handler
	httpServer *http.Server
}

// New builds the server and registers every recognized endpoint.
func New(cfg *config.Config, dispatcher *dispatch.Handler) *Server {
	s := &Server{cfg: cfg, dispatcher: dispatcher}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	for _, ep := range dispatch.OneShotEndpoints() {
		mux.HandleFunc(ep, s.handleOneShot(ep))
	}
	for _, ep := range dispatch.StreamEndpoints() {
		mux.HandleFunc(ep, s.handleStream(ep))
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	log.Info().Str("addr", s.httpServer.Addr).Msg("gateway listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": msg, "type": "gateway_error"},
	})
}

// writeNotHandled signals the host shim to proxy to the official backend.
func writeNotHandled(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]any{"not_handled": true})
}

func writeJSON(w http.ResponseWriter, v any) {
	raw, err := utils.MarshalNoEscape(v)
	if err != nil {
		writeError(w, "encode response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

// handleHealth returns gateway health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// readBody decodes the request body. An empty body is a nil value, not an
// error; the dispatch layer normalizes everything downstream.
func readBody(w http.ResponseWriter, r *http.Request) (any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, true
		}
		writeError(w, "invalid JSON body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

// requestTimeout reads the caller-supplied timeout from the body.
func requestTimeout(body any) time.Duration {
	ms := protocol.AsInt(protocol.PickAny(body, "timeout_ms", "timeoutMs"))
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// bearerToken extracts the upstream bearer token, if the host forwarded
// one for official calls.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

func (s *Server) handleOneShot(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		ctx := r.Context()
		requestID := uuid.NewString()
		started := time.Now()

		result, err := s.dispatcher.Handle(ctx, endpoint, body, nil, requestTimeout(body), bearerToken(r))
		logCall(endpoint, requestID, started, err)
		if err != nil {
			writeDispatchError(w, err)
			return
		}
		writeJSON(w, result)
	}
}

func (s *Server) handleStream(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		ctx := r.Context()
		requestID := uuid.NewString()
		started := time.Now()

		seq, err := s.dispatcher.HandleStream(ctx, endpoint, body, nil, requestTimeout(body))
		logCall(endpoint, requestID, started, err)
		if err != nil {
			writeDispatchError(w, err)
			return
		}

		flusher, _ := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		for {
			chunk, err := seq.Next(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Warn().Err(err).Str("endpoint", endpoint).Str("request_id", requestID).Msg("stream ended with error")
					writeSSE(w, flusher, map[string]any{"error": err.Error()})
				}
				break
			}
			writeSSE(w, flusher, chunk)
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, v any) {
	raw, err := utils.MarshalNoEscape(v)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(raw)
	_, _ = w.Write([]byte("\n\n"))
	if flusher != nil {
		flusher.Flush()
	}
}

func writeDispatchError(w http.ResponseWriter, err error) {
	if errors.Is(err, dispatch.ErrNotHandled) {
		writeNotHandled(w)
		return
	}
	var disabled *dispatch.RouteDisabledError
	if errors.As(err, &disabled) {
		writeError(w, disabled.Error(), http.StatusForbidden)
		return
	}
	writeError(w, err.Error(), http.StatusBadGateway)
}

func logCall(endpoint, requestID string, started time.Time, err error) {
	evt := log.Info()
	if err != nil && !errors.Is(err, dispatch.ErrNotHandled) {
		evt = log.Warn().Err(err)
	}
	evt.
		Str("endpoint", endpoint).
		Str("request_id", requestID).
		Dur("elapsed", time.Since(started)).
		Msg("dispatch")
}
