// internal/httpapi/server.go
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

// Pinger checks that the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports open conversation sessions.
type SessionCounter interface {
	Active() int
}

// Deps holds what the ops API reads from. Sessions may be nil.
type Deps struct {
	DB          Pinger
	Submissions types.SubmissionStore
	Cooldowns   types.CooldownStore
	Sessions    SessionCounter
	Window      time.Duration
}

// Server is the read-only ops HTTP API: health, metrics and queue
// inspection.
type Server struct {
	deps Deps
	now  func() time.Time
	mux  *http.ServeMux
}

// NewServer creates a Server with its routes registered.
func NewServer(deps Deps) *Server {
	s := &Server{
		deps: deps,
		now:  time.Now,
		mux:  http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /api/submissions", s.handleSubmissions)
	s.mux.HandleFunc("GET /api/submissions/{id}", s.handleSubmission)
	s.mux.HandleFunc("GET /api/cooldowns", s.handleCooldowns)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.DB.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submissionResponse struct {
	ID            string            `json:"id"`
	SubmitterID   int64             `json:"submitter_id"`
	SubmitterName string            `json:"submitter_name"`
	Caption       string            `json:"caption"`
	Items         []types.MediaItem `json:"items"`
	CreatedAt     string            `json:"created_at"`
	AgeSeconds    int64             `json:"age_seconds"`
}

func (s *Server) toResponse(sub *types.PendingSubmission) submissionResponse {
	return submissionResponse{
		ID:            string(sub.ID),
		SubmitterID:   sub.SubmitterID,
		SubmitterName: sub.SubmitterName,
		Caption:       sub.Caption,
		Items:         sub.Items,
		CreatedAt:     sub.CreatedAt.UTC().Format(time.RFC3339),
		AgeSeconds:    int64(s.now().Sub(sub.CreatedAt) / time.Second),
	}
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.deps.Submissions.List(r.Context())
	if err != nil {
		slog.Error("list submissions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	result := make([]submissionResponse, 0, len(subs))
	for _, sub := range subs {
		result = append(result, s.toResponse(sub))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	id := types.SubmissionID(r.PathValue("id"))
	sub, err := s.deps.Submissions.Get(r.Context(), id)
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		slog.Error("get submission failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(sub))
}

type cooldownResponse struct {
	Destination      string `json:"destination"`
	LastPublish      string `json:"last_publish"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

func (s *Server) handleCooldowns(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Cooldowns.List(r.Context())
	if err != nil {
		slog.Error("list cooldowns failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	now := s.now()
	result := make([]cooldownResponse, 0, len(all))
	for dest, last := range all {
		remaining := last.Add(s.deps.Window).Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		result = append(result, cooldownResponse{
			Destination:      dest,
			LastPublish:      last.UTC().Format(time.RFC3339),
			RemainingSeconds: int64((remaining + time.Second - 1) / time.Second),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Destination < result[j].Destination
	})
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	subs, err := s.deps.Submissions.List(r.Context())
	if err != nil {
		slog.Error("list submissions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	stats := map[string]int{"pending_submissions": len(subs)}
	if s.deps.Sessions != nil {
		stats["active_sessions"] = s.deps.Sessions.Active()
	}
	writeJSON(w, http.StatusOK, stats)
}
