package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/focus/internal/app/session"
	"github.com/tutu-network/focus/internal/domain"
)

// ─── Focus Sessions (/api/sessions) ──────────────────────────────────────────

type startSessionRequest struct {
	SessionType domain.SessionType `json:"session_type"`
	Duration    int                `json:"duration"`
}

type completeSessionRequest struct {
	EndTime *time.Time `json:"end_time"`
	Notes   string     `json:"notes"`
	Rating  int        `json:"rating"`
}

type distractionRequest struct {
	Type            string `json:"type"`
	Note            string `json:"note"`
	DurationSeconds int    `json:"duration_seconds"`
	Severity        int    `json:"severity"`
	Impact          int    `json:"impact"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.SessionType == "" {
		req.SessionType = domain.SessionWork
	}
	sess, err := s.svc.Sessions.Start(r.Context(), userID(r), req.SessionType, req.Duration)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Sessions.Active(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": sess})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeDomainError(w, r, domain.Invalid("limit", "want a non-negative integer"))
			return
		}
		limit = n
	}
	list, err := s.svc.Sessions.History(r.Context(), userID(r), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.FocusSession{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": list})
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Sessions.Pause(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Sessions.Resume(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	var req completeSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	in := session.CompleteInput{Notes: req.Notes, Rating: req.Rating}
	if req.EndTime != nil {
		in.EndTime = *req.EndTime
	}
	res, err := s.svc.Sessions.Complete(r.Context(), userID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Sessions.Cancel(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddDistraction(w http.ResponseWriter, r *http.Request) {
	var req distractionRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	d, err := s.svc.Sessions.AddDistraction(r.Context(), userID(r), chi.URLParam(r, "id"), session.DistractionInput{
		Type:            req.Type,
		Note:            req.Note,
		DurationSeconds: req.DurationSeconds,
		Severity:        req.Severity,
		Impact:          req.Impact,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListDistractions(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Sessions.Distractions(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Distraction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"distractions": list})
}

func (s *Server) handleResolveDistraction(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Sessions.ResolveDistraction(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
