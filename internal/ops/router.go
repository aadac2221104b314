// Package ops serves the operational HTTP endpoints of ledgerd: liveness,
// readiness and audit chain verification.
package ops

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/gl-core/pkg/audit"
)

// Pinger is anything readiness depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Dependencies wires the router.
type Dependencies struct {
	Logger *slog.Logger
	// Checks are run by /readyz, keyed by name.
	Checks map[string]Pinger
	// AuditSink is the JSON lines audit file. /audit/verify returns 404
	// without it.
	AuditSink    string
	CheckTimeout time.Duration
}

// NewRouter builds the ops handler.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.CheckTimeout <= 0 {
		deps.CheckTimeout = 2 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(CorrelationID)
	r.Use(RequestLogger(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", handleReady(deps))
	if deps.AuditSink != "" {
		r.Get("/audit/verify", handleAuditVerify(deps))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func handleReady(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), deps.CheckTimeout)
		defer cancel()

		resp := readyResponse{Status: "ok", Checks: make(map[string]string, len(deps.Checks))}
		status := http.StatusOK
		for name, check := range deps.Checks {
			if err := check.Ping(ctx); err != nil {
				deps.Logger.Warn("readiness_check_failed", "cid", CorrelationIDFromContext(r.Context()), "check", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, r, status, resp)
	}
}

func handleAuditVerify(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := audit.VerifyFile(deps.AuditSink)
		if err != nil {
			deps.Logger.Error("audit_verify_failed", "cid", CorrelationIDFromContext(r.Context()), "error", err)
			writeError(w, r, http.StatusInternalServerError, "audit_unreadable")
			return
		}
		status := http.StatusOK
		if !report.Valid {
			deps.Logger.Error("audit_chain_broken", "cid", CorrelationIDFromContext(r.Context()), "broken_at", *report.BrokenAt)
			status = http.StatusConflict
		}
		writeJSON(w, r, status, report)
	}
}
