// Package api provides the HTTP server for focus.
// Every /api route except registration acts for the user named by the
// X-User-ID header; domain errors map to status codes by kind.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/focus/internal/app/account"
	"github.com/tutu-network/focus/internal/app/engagement"
	"github.com/tutu-network/focus/internal/app/session"
	"github.com/tutu-network/focus/internal/app/tasks"
	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/health"
	"github.com/tutu-network/focus/internal/infra/scheduler"
)

// UserHeader names the caller.
const UserHeader = "X-User-ID"

// AdminHeader carries the admin token for /api/admin routes.
const AdminHeader = "X-Admin-Token"

// Services are the application components the server exposes.
type Services struct {
	Accounts *account.Service
	Tasks    *tasks.Ledger
	Sessions *session.Service
	Levels   *engagement.LevelService
	Rewards  *engagement.RewardService
	Sweep    *scheduler.Sweep // nil disables /api/admin/sweep
	Health   *health.Checker  // nil reports a static ok
	Clock    domain.Clock
	Location *time.Location
}

// Options tune the HTTP surface.
type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	AdminToken     string
	Version        string
}

// Server is the focus HTTP API server.
type Server struct {
	svc            Services
	opts           Options
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(svc Services, opts Options) *Server {
	if svc.Clock == nil {
		svc.Clock = domain.SystemClock{}
	}
	if svc.Location == nil {
		svc.Location = time.UTC
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{svc: svc, opts: opts}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": s.opts.Version,
		})
	})

	r.Post("/api/users", s.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Get("/api/me", s.handleMe)
		r.Get("/api/me/progress", s.handleProgress)

		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Post("/reorder", s.handleReorderTasks)
			r.Get("/{id}", s.handleGetTask)
			r.Patch("/{id}", s.handleUpdateTask)
			r.Delete("/{id}", s.handleDeleteTask)
			r.Post("/{id}/complete", s.handleCompleteTask)
			r.Post("/{id}/uncomplete", s.handleUncompleteTask)
		})

		r.Route("/api/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleStartSession)
			r.Get("/active", s.handleActiveSession)
			r.Post("/{id}/pause", s.handlePauseSession)
			r.Post("/{id}/resume", s.handleResumeSession)
			r.Post("/{id}/complete", s.handleCompleteSession)
			r.Delete("/{id}", s.handleCancelSession)
			r.Get("/{id}/distractions", s.handleListDistractions)
			r.Post("/{id}/distractions", s.handleAddDistraction)
		})

		r.Post("/api/distractions/{id}/resolve", s.handleResolveDistraction)
		r.Post("/api/rewards/check", s.handleCheckRewards)
	})

	if s.svc.Sweep != nil && s.opts.AdminToken != "" {
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/sweep", s.handleTriggerSweep)
			r.Get("/sweep", s.handleLastSweep)
		})
	}

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	status, code := "ok", http.StatusOK
	if !s.svc.Health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.svc.Health.Statuses(),
	})
}

// ─── Caller identity ─────────────────────────────────────────────────────────

type ctxKey int

const userKey ctxKey = 0

// requireUser resolves X-User-ID to a known user.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserHeader))
		if id == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
			return
		}
		if _, err := s.svc.Accounts.Get(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				writeError(w, http.StatusUnauthorized, "unknown user")
				return
			}
			writeDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, id)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(AdminHeader) != s.opts.AdminToken {
			writeError(w, http.StatusForbidden, "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userKey).(string)
	return id
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindInvariant:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders err with the status of its kind. Storage and
// unexpected errors are logged and replaced by a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	body := map[string]interface{}{
		"message": err.Error(),
		"type":    kind.String(),
	}

	var limitErr *domain.DailyLimitError
	if errors.As(err, &limitErr) {
		body["current"] = limitErr.Current
		body["limit"] = limitErr.Limit
	}
	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		body["field"] = valErr.Field
	}

	switch kind {
	case domain.KindTransient:
		log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
		body["message"] = "storage temporarily unavailable, retry later"
	case domain.KindUnexpected:
		log.Printf("[api] %s %s: unexpected: %v", r.Method, r.URL.Path, err)
		body["message"] = "internal error"
	}

	writeJSON(w, statusFor(kind), map[string]interface{}{"error": body})
}

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return domain.Invalid("body", "malformed JSON: "+err.Error())
	}
	return nil
}

// corsMiddleware adds CORS headers for the configured origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+UserHeader+", "+AdminHeader)
		}
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.opts.CORSOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}
	return ""
}
