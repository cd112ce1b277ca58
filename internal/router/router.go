// Package router sets up the HTTP routes and middleware chain of the sync
// server: a health check and the websocket endpoint.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sitekit/internal/middleware"
	"sitekit/internal/store"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// Health reports what the health endpoint shows besides its status.
type Health interface {
	Connections() int
}

// SyncLog lists recently applied mutations. *store.SyncLogStore implements it.
type SyncLog interface {
	RecentEntries(ctx context.Context, limit int) ([]store.SyncLogEntry, error)
}

// New creates and returns the configured Chi router. sync serves the
// websocket endpoint; syncLog, when non-nil, is exposed read-only at
// /sync-log; limiter, when non-nil, throttles handshakes per client.
func New(sync http.Handler, health Health, syncLog SyncLog, limiter *middleware.RateLimiter) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecureHeaders)

	r.Get("/health", healthHandler(health))
	if syncLog != nil {
		r.Get("/sync-log", syncLogHandler(syncLog))
	}

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.Get("/ws", sync.ServeHTTP)
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(health Health) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if health != nil {
			body["connections"] = health.Connections()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(body)
	}
}

// syncLogHandler returns the newest sync log entries. ?limit= caps the count.
func syncLogHandler(syncLog SyncLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultLogLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxLogLimit)
		}

		entries, err := syncLog.RecentEntries(r.Context(), limit)
		if err != nil {
			slog.Error("failed to read sync log", "error", err, "request_id", middleware.RequestIDFromCtx(r.Context()))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
