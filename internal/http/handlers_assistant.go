package http

import (
	"net/http"
	"strings"

	"finwise/internal/assistant"
)

type assistantResponse struct {
	assistant.Config
	HasAPIKey bool `json:"hasApiKey"`
	Loading   bool `json:"loading"`
}

// assistantRequest carries optional fields. Absent fields keep their value;
// an empty apiKey clears the key.
type assistantRequest struct {
	APIKey   *string `json:"apiKey,omitempty"`
	Endpoint *string `json:"endpointUrl,omitempty"`
	Model    *string `json:"modelName,omitempty"`
	Language *string `json:"language,omitempty"`
}

type askRequest struct {
	Question     string `json:"question"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

type askResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) assistantView() assistantResponse {
	cfg := s.assistant.Config()
	return assistantResponse{
		Config:    cfg.Masked(),
		HasAPIKey: cfg.APIKey != "",
		Loading:   s.assistant.IsLoading(),
	}
}

func (s *Server) handleGetAssistant(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.assistantView())
}

func (s *Server) handleSetAssistant(w http.ResponseWriter, r *http.Request) {
	var req assistantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err, "configure_assistant")
		return
	}
	cfg := s.assistant.Config()
	if req.APIKey != nil {
		cfg.APIKey = *req.APIKey
	}
	if req.Endpoint != nil {
		cfg.Endpoint = *req.Endpoint
	}
	if req.Model != nil {
		cfg.Model = *req.Model
	}
	if req.Language != nil {
		cfg.Language = *req.Language
	}
	if err := cfg.Validate(); err != nil {
		fail(w, r, err, "configure_assistant")
		return
	}
	err := s.assistant.Configure(r.Context(), cfg)
	respondMutation(w, r, http.StatusOK, s.assistantView(), err, "configure_assistant")
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err, "ask")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusUnprocessableEntity, "question cannot be empty")
		return
	}
	reply := s.assistant.Ask(r.Context(), req.Question, req.SystemPrompt)
	writeJSON(w, http.StatusOK, askResponse{Reply: reply})
}
