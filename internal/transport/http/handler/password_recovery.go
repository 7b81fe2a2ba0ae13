package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hotel-account-api/internal/application/account"
	"github.com/hotel-account-api/internal/domain"
	"github.com/hotel-account-api/internal/pkg/validate"
)

// PasswordRecoveryHandler handles the unauthenticated password reset flow.
type PasswordRecoveryHandler struct {
	svc account.Service
}

func NewPasswordRecoveryHandler(svc account.Service) *PasswordRecoveryHandler {
	return &PasswordRecoveryHandler{svc: svc}
}

func (h *PasswordRecoveryHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		var req account.PasswordResetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		deliveryID, err := h.svc.RequestPasswordReset(r.Context(), req)
		if err != nil {
			// Don't reveal whether the address has an account.
			if errors.Is(err, domain.ErrNotFound) {
				slog.Warn("password reset requested for unknown email")
				writeJSON(w, http.StatusOK, OTPEnvelope{Message: "code sent"})
				return
			}
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OTPEnvelope{Message: "code sent", DeliveryID: deliveryID})
	case "confirm":
		var req account.PasswordResetConfirm
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.svc.ConfirmPasswordReset(r.Context(), req); err != nil {
			if otpFailure(w, r, err) {
				return
			}
			if errors.Is(err, domain.ErrNotFound) {
				// Same generic message as any other failed verification.
				writeError(w, http.StatusUnauthorized, "invalid or expired code")
				return
			}
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
