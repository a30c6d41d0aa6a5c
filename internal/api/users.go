package api

import (
	"net/http"
)

type registerRequest struct {
	Name           string `json:"name"`
	DailyTaskLimit int    `json:"daily_task_limit"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	u, err := s.svc.Accounts.Register(r.Context(), req.Name, req.DailyTaskLimit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.Accounts.Get(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Levels.Progress(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
