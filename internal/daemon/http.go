package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/docship/internal/logfields"
	"git.home.luguber.info/inful/docship/internal/metrics"
)

const maxWebhookBody = 10 << 20

// HTTPServer exposes the daemon's webhook and observability endpoints.
type HTTPServer struct {
	daemon *Daemon
	server *http.Server
}

// NewHTTPServer builds the daemon HTTP server on the configured
// listen address.
func NewHTTPServer(daemon *Daemon) *HTTPServer {
	s := &HTTPServer{daemon: daemon}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /runs", s.handleRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.Handle("GET /metrics", metrics.HTTPHandler(daemon.Registry()))

	s.server = &http.Server{
		Addr:              daemon.Config().Daemon.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving. It returns once the listener stops.
func (s *HTTPServer) Start() error {
	slog.Info("HTTP server listening", slog.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if signature == "" {
		signature = r.Header.Get("X-Gitea-Signature")
	}
	if !ValidateSignature(body, signature, s.daemon.Config().Daemon.WebhookSecret) {
		slog.Warn("Webhook signature rejected")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if evt := r.Header.Get("X-GitHub-Event"); evt != "" && evt != "push" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "not a push event"})
		return
	}

	push, err := ParsePush(body)
	if err != nil {
		slog.Debug("Ignoring webhook", logfields.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": err.Error()})
		return
	}

	if err := s.daemon.HandlePush(r.Context(), push); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "ref": push.Ref})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Status())
}

// maxRunsLimit caps how many runs a single /runs request may ask for.
const maxRunsLimit = 200

// parseRunsLimit interprets the ?limit= parameter, falling back to 20
// and clamping to maxRunsLimit.
func parseRunsLimit(raw string) int {
	limit := 20
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}
	return limit
}

func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseRunsLimit(r.URL.Query().Get("limit"))

	runs, err := s.daemon.Store().ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.daemon.Store().GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	runEvents, err := s.daemon.Store().EventsByRun(r.Context(), run.ID)
	if err != nil {
		http.Error(w, "failed to load run events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "events": runEvents})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", logfields.Error(err))
	}
}
