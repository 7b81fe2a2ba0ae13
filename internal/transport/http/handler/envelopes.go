package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hotel-account-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AuthEnvelope wraps login responses.
type AuthEnvelope struct {
	AccessToken string       `json:"access_token,omitempty"`
	User        *domain.User `json:"user,omitempty"`
}

// OTPEnvelope wraps code-issuance responses. The delivery ID correlates the
// out-of-band send in logs and support tooling; it is not a secret.
type OTPEnvelope struct {
	Message    string `json:"message"`
	DeliveryID string `json:"delivery_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinel errors to HTTP status codes.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStorage):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// otpFailure normalizes every code-verification failure to one generic user
// message. The precise reason (expired, mismatch, lockout, storage outage)
// goes to the log only, so responses never leak which check failed.
func otpFailure(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, domain.ErrOTPNotFound),
		errors.Is(err, domain.ErrOTPPurposeMismatch),
		errors.Is(err, domain.ErrOTPExpired),
		errors.Is(err, domain.ErrOTPCodeMismatch),
		errors.Is(err, domain.ErrOTPTooManyAttempts):
		slog.Warn("otp verification failed", "path", r.URL.Path, "reason", err)
		writeError(w, http.StatusUnauthorized, "invalid or expired code")
		return true
	case errors.Is(err, domain.ErrStorage):
		slog.Error("otp verification unavailable", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return true
	}
	return false
}
