package api

import (
	"net/http"

	"github.com/gorilla/mux"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/service"
)

// handleListAvailableTasks handles GET /api/tasks - approved tasks the caller may still claim
func (s *Server) handleListAvailableTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.services.Tasks.ListAvailable(r.Context(), accountFromContext(r.Context()).ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
	})
}

// handleStartTask handles POST /api/tasks/{id}/start
func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	start, err := s.services.Tasks.StartTask(r.Context(), accountFromContext(r.Context()).ID, mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, start)
}

// handleClaimTask handles POST /api/tasks/{id}/claim
func (s *Server) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	result, err := s.services.Tasks.ClaimTask(r.Context(), accountFromContext(r.Context()).ID, mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleListTasks handles GET /api/admin/tasks - the full catalog including unapproved tasks
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.services.Tasks.ListTasks(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
	})
}

// handleCreateTask handles POST /api/admin/tasks
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTaskInput
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	task, err := s.services.Tasks.CreateTask(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, task)
}

// handleDeleteTask handles DELETE /api/admin/tasks/{id}
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	if err := s.services.Tasks.DeleteTask(r.Context(), taskID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":      taskID,
		"deleted": true,
	})
}

// handleSetTaskApproval handles PUT /api/admin/tasks/{id}/approval
func (s *Server) handleSetTaskApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approved *bool `json:"approved"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.Approved == nil {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("approved", "required"))
		return
	}

	task, err := s.services.Tasks.SetTaskApproved(r.Context(), mux.Vars(r)["id"], *req.Approved)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, task)
}
