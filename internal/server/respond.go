package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"permitflow/internal/payments"
	"permitflow/pkg/types"
)

const maxBodyBytes = 1 << 20

// result is the envelope every mutating endpoint answers with.
type result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func ok(message string) result {
	return result{Success: true, Message: message}
}

// decodeRequest accepts JSON or urlencoded form bodies.
func decodeRequest(r *http.Request, dst any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
		if err := dec.Decode(dst); err != nil {
			return types.NewValidationError("", "request body is not valid JSON")
		}
		return nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return types.NewValidationError("", "invalid form payload")
	}
	if err := decoder.Decode(dst, r.PostForm); err != nil {
		return types.NewValidationError("", "invalid form payload")
	}
	return nil
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

// statusFor maps a workflow error to its HTTP status and the message the
// caller may see.
func statusFor(err error) (int, string) {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, types.ErrUnauthorizedActor):
		return http.StatusForbidden, "you are not permitted to act on this application"
	case errors.Is(err, types.ErrRejectionNotPermitted):
		return http.StatusForbidden, types.ErrRejectionNotPermitted.Error()
	case errors.Is(err, types.ErrInvalidOrExpiredOtp):
		return http.StatusUnauthorized, types.ErrInvalidOrExpiredOtp.Error()
	case errors.Is(err, types.ErrStageMismatch):
		return http.StatusConflict, conflict(types.ErrStageMismatch)
	case errors.Is(err, types.ErrTerminalState):
		return http.StatusConflict, conflict(types.ErrTerminalState)
	case errors.Is(err, types.ErrPaymentRequired):
		return http.StatusConflict, conflict(types.ErrPaymentRequired)
	case errors.Is(err, types.ErrApplicationNotFound):
		return http.StatusNotFound, types.ErrApplicationNotFound.Error()
	case errors.Is(err, types.ErrAccessDenied):
		return http.StatusBadRequest, types.ErrAccessDenied.Error()
	case errors.Is(err, types.ErrTokenExpired):
		return http.StatusGone, "download link expired; verify again to get a new one"
	case errors.Is(err, types.ErrTokenNotFound):
		return http.StatusNotFound, "download link not found"
	case errors.Is(err, types.ErrDocumentNotFound):
		return http.StatusNotFound, types.ErrDocumentNotFound.Error()
	case errors.Is(err, payments.ErrProviderDisabled):
		return http.StatusServiceUnavailable, payments.ErrProviderDisabled.Error()
	case errors.Is(err, payments.ErrInvalidWebhook):
		return http.StatusBadRequest, payments.ErrInvalidWebhook.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

func conflict(err error) string {
	return fmt.Sprintf("%s; refresh and try again", err)
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	s.writeJSON(w, status, result{Message: message})
}
