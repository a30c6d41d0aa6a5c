package api

import (
	"net/http"
)

// ─── Rewards (/api/rewards, /api/admin) ──────────────────────────────────────

func (s *Server) handleCheckRewards(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Rewards.CheckNow(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTriggerSweep(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Sweep.Trigger(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleLastSweep(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.svc.Sweep.LastSummary()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"summary": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"summary": sum})
}
