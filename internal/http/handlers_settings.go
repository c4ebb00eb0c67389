package http

import (
	"net/http"

	"finwise/internal/core"
)

func (s *Server) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	var p core.UserProfile
	if err := decodeJSON(w, r, &p); err != nil {
		fail(w, r, err, "set_profile")
		return
	}
	if err := p.Validate(); err != nil {
		fail(w, r, err, "set_profile")
		return
	}
	err := s.store.SetUserProfile(r.Context(), &p)
	respondMutation(w, r, http.StatusOK, s.store.Profile(), err, "set_profile")
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	err := s.store.SetUserProfile(r.Context(), nil)
	respondMutation(w, r, http.StatusNoContent, nil, err, "delete_profile")
}

type preferencesRequest struct {
	Theme    *core.Theme `json:"theme,omitempty"`
	Currency *string     `json:"currency,omitempty"`
}

type preferencesResponse struct {
	Theme    core.Theme `json:"theme"`
	Currency string     `json:"currency"`
}

// handleSetPreferences validates both fields before applying either.
func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err, "set_preferences")
		return
	}
	if req.Theme != nil && !req.Theme.Valid() {
		fail(w, r, core.ErrInvalidTheme, "set_preferences")
		return
	}
	if req.Currency != nil {
		if err := core.ValidateCurrency(*req.Currency); err != nil {
			fail(w, r, err, "set_preferences")
			return
		}
	}

	var err error
	if req.Theme != nil {
		err = s.store.SetTheme(r.Context(), *req.Theme)
	}
	if req.Currency != nil {
		if cerr := s.store.SetCurrency(r.Context(), core.NormalizeCurrency(*req.Currency)); err == nil {
			err = cerr
		}
	}
	respondMutation(w, r, http.StatusOK, preferencesResponse{
		Theme:    s.store.Theme(),
		Currency: s.store.Currency(),
	}, err, "set_preferences")
}
