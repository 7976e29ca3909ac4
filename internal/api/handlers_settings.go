package api

import (
	"net/http"

	"github.com/gem-ledger/internal/models"
)

// handleGetSettings handles GET /api/admin/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.services.Settings.Get(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// handleUpdateSettings handles PUT /api/admin/settings - replaces the whole singleton
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.GlobalSettings
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	settings, err := s.services.Settings.Update(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// handleVerifyMembership handles POST /api/membership/verify
func (s *Server) handleVerifyMembership(w http.ResponseWriter, r *http.Request) {
	result, err := s.services.Membership.VerifyMembership(r.Context(), accountFromContext(r.Context()).ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
