package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/focus/internal/app/tasks"
	"github.com/tutu-network/focus/internal/domain"
	"github.com/tutu-network/focus/internal/timewindow"
)

// ─── Task Ledger (/api/tasks) ────────────────────────────────────────────────

type createTaskRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	TaskDate      string `json:"task_date"` // YYYY-MM-DD, default today
	EstimatedTime int    `json:"estimated_time"`
}

type updateTaskRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	EstimatedTime *int    `json:"estimated_time"`
}

type completeTaskRequest struct {
	ActualTime int `json:"actual_time"`
}

type reorderRequest struct {
	Date   string `json:"date"`
	Orders []struct {
		TaskID string `json:"task_id"`
		Order  int    `json:"order"`
	} `json:"orders"`
}

// day parses a YYYY-MM-DD value, defaulting to today in the server zone.
func (s *Server) day(field, v string) (time.Time, error) {
	if v == "" {
		return timewindow.Day(s.svc.Clock.Now(), s.svc.Location), nil
	}
	d, err := timewindow.ParseDay(v)
	if err != nil {
		return time.Time{}, domain.Invalid(field, "want YYYY-MM-DD")
	}
	return d, nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	day, err := s.day("date", r.URL.Query().Get("date"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	list, err := s.svc.Tasks.ListDay(r.Context(), userID(r), day)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":  timewindow.FormatDay(day),
		"tasks": list,
	})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	day, err := s.day("task_date", req.TaskDate)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	task, err := s.svc.Tasks.Create(r.Context(), userID(r), tasks.CreateInput{
		Title:         req.Title,
		Description:   req.Description,
		TaskDate:      day,
		EstimatedTime: req.EstimatedTime,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.Tasks.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	task, err := s.svc.Tasks.Update(r.Context(), userID(r), chi.URLParam(r, "id"), tasks.UpdateInput{
		Title:         req.Title,
		Description:   req.Description,
		EstimatedTime: req.EstimatedTime,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Tasks.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req completeTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	res, err := s.svc.Tasks.Complete(r.Context(), userID(r), chi.URLParam(r, "id"), req.ActualTime)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUncompleteTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.Tasks.Uncomplete(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleReorderTasks(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	day, err := s.day("date", req.Date)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	orders := make([]domain.TaskOrder, len(req.Orders))
	for i, o := range req.Orders {
		orders[i] = domain.TaskOrder{TaskID: o.TaskID, Order: o.Order}
	}

	list, err := s.svc.Tasks.Reorder(r.Context(), userID(r), day, orders)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":  timewindow.FormatDay(day),
		"tasks": list,
	})
}
