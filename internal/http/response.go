package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"finwise/internal/assistant"
	"finwise/internal/core"
	"finwise/internal/log"
	"finwise/internal/store"
)

const maxBodyBytes = 1 << 20

var errMalformedBody = errors.New("malformed JSON body")

type errorResponse struct {
	Error string `json:"error"`
}

// mutationResponse wraps the result of a write. Warning is set when the
// change was applied in memory but could not be saved.
type mutationResponse struct {
	Data    any    `json:"data,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a single JSON object into dst. Unknown fields are
// rejected so typos do not silently drop updates.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errMalformedBody)
	}
	return nil
}

var validationErrors = []error{
	core.ErrEmptyName,
	core.ErrNameTooLong,
	core.ErrInvalidAmount,
	core.ErrNegativeAmount,
	core.ErrInvalidDate,
	core.ErrInvalidType,
	core.ErrInvalidTheme,
	core.ErrInvalidCurrency,
	core.ErrInvalidEmail,
	assistant.ErrInvalidEndpoint,
	assistant.ErrInvalidLanguage,
	assistant.ErrEmptyModel,
}

func statusFor(err error) int {
	if errors.Is(err, errMalformedBody) {
		return http.StatusBadRequest
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Server errors are logged and
// their details hidden.
func fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	status := statusFor(err)
	if status >= 500 {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldError, err, log.FieldOperation, op, log.FieldPath, r.URL.Path)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// respondMutation writes data with status, or with a warning when err only
// reports a failed save. Any other error fails the request.
func respondMutation(w http.ResponseWriter, r *http.Request, status int, data any, err error, op string) {
	if err != nil && !errors.Is(err, store.ErrNotPersisted) {
		fail(w, r, err, op)
		return
	}
	resp := mutationResponse{Data: data}
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Change applied but not saved",
			log.FieldError, err, log.FieldOperation, op)
		resp.Warning = "changes were applied but could not be saved: " + firstLine(err.Error())
		if status == http.StatusNoContent {
			status = http.StatusOK
		}
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, resp)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
