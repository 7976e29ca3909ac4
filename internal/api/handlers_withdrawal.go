package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/gem-ledger/internal/models"
	"github.com/gem-ledger/internal/service"
	"github.com/gem-ledger/internal/types"
)

// handleRequestWithdrawal handles POST /api/withdrawals
func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req service.WithdrawalRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	withdrawal, err := s.services.Withdrawals.RequestWithdrawal(r.Context(), accountFromContext(r.Context()).ID, req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, withdrawal)
}

// handleListOwnWithdrawals handles GET /api/withdrawals?limit=
func (s *Server) handleListOwnWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	withdrawals, err := s.services.Withdrawals.ListWithdrawals(r.Context(), models.WithdrawalFilter{
		AccountID: accountFromContext(r.Context()).ID,
		Limit:     limit,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"withdrawals": withdrawals,
	})
}

// handleListWithdrawals handles GET /api/admin/withdrawals?status=&limit=
func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	withdrawals, err := s.services.Withdrawals.ListWithdrawals(r.Context(), models.WithdrawalFilter{
		Status: types.WithdrawalStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:  limit,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"withdrawals": withdrawals,
	})
}

// handleResolveWithdrawal handles POST /api/admin/withdrawals/{id}/resolve
func (s *Server) handleResolveWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status types.WithdrawalStatus `json:"status"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	withdrawal, err := s.services.Withdrawals.ResolveWithdrawal(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, withdrawal)
}
