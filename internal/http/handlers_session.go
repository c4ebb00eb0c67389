package http

import (
	"net/http"

	"finwise/internal/core"
)

type signInRequest struct {
	Profile  core.UserProfile `json:"profile"`
	Remember bool             `json:"remember"`
}

type sessionResponse struct {
	Profile             *core.UserProfile `json:"profile"`
	OnboardingCompleted bool              `json:"onboardingCompleted"`
	HasSeenWelcome      bool              `json:"hasSeenWelcome"`
}

func (s *Server) session() sessionResponse {
	return sessionResponse{
		Profile:             s.store.Profile(),
		OnboardingCompleted: s.store.OnboardingCompleted(),
		HasSeenWelcome:      s.store.HasSeenWelcome(),
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session())
}

// handleSignIn sets the profile; remember keeps a global copy that is
// restored on the next start if the device profile is gone.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err, "sign_in")
		return
	}
	if err := req.Profile.Validate(); err != nil {
		fail(w, r, err, "sign_in")
		return
	}
	err := s.store.SignIn(r.Context(), req.Profile, req.Remember)
	respondMutation(w, r, http.StatusOK, s.session(), err, "sign_in")
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	err := s.store.SignOut(r.Context())
	respondMutation(w, r, http.StatusNoContent, nil, err, "sign_out")
}

func (s *Server) handleCompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	err := s.store.CompleteOnboarding(r.Context())
	respondMutation(w, r, http.StatusOK, s.session(), err, "complete_onboarding")
}

func (s *Server) handleWelcomeSeen(w http.ResponseWriter, r *http.Request) {
	err := s.store.MarkWelcomeSeen(r.Context())
	respondMutation(w, r, http.StatusOK, s.session(), err, "welcome_seen")
}
