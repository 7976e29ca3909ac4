package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/service"
)

// handleInit handles GET /api/init - everything the client needs on first load
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	payload, err := s.services.App.Init(r.Context(), accountFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, payload)
}

// handleSyncAccount handles POST /api/account/sync - profile update plus fresh view
func (s *Server) handleSyncAccount(w http.ResponseWriter, r *http.Request) {
	var req service.ProfileUpdate
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	view, err := s.services.App.Sync(r.Context(), accountFromContext(r.Context()).ID, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handleOwnHistory handles GET /api/account/history?limit=
func (s *Server) handleOwnHistory(w http.ResponseWriter, r *http.Request) {
	s.respondHistory(w, r, accountFromContext(r.Context()).ID)
}

// handleUserHistory handles GET /api/admin/users/{id}/history?limit=
func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	s.respondHistory(w, r, mux.Vars(r)["id"])
}

func (s *Server) respondHistory(w http.ResponseWriter, r *http.Request, accountID string) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	history, err := s.services.History.History(r.Context(), accountID, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

// handleListUsers handles GET /api/admin/users?limit=&offset=
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	accounts, err := s.services.Accounts.List(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleSetBanned handles PUT /api/admin/users/{id}/ban
func (s *Server) handleSetBanned(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Banned *bool `json:"banned"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.Banned == nil {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("banned", "required"))
		return
	}

	acc, err := s.services.Accounts.SetBanned(r.Context(), mux.Vars(r)["id"], *req.Banned)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, acc)
}

// handleSetVerified handles PUT /api/admin/users/{id}/verify
func (s *Server) handleSetVerified(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Verified *bool `json:"verified"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.Verified == nil {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("verified", "required"))
		return
	}

	acc, err := s.services.Accounts.SetVerified(r.Context(), mux.Vars(r)["id"], *req.Verified)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, acc)
}

// handleResetBalance handles POST /api/admin/users/{id}/reset-balance
func (s *Server) handleResetBalance(w http.ResponseWriter, r *http.Request) {
	acc, err := s.services.Accounts.ResetBalance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, acc)
}

// handleResetProgress handles POST /api/admin/users/{id}/reset-progress
func (s *Server) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	acc, err := s.services.Accounts.ResetProgress(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, acc)
}

// queryInt reads a non-negative integer query parameter
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewInvalidParameterError(name, "must be a non-negative integer")
	}
	return n, nil
}
