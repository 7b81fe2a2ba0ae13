package handler

import (
	"fmt"
	"net/http"

	"github.com/hotel-account-api/internal/application/otp"
)

// OTPMaintenanceHandler exposes a manual trigger for the verified-record
// cleanup, for ops use alongside the periodic timer.
type OTPMaintenanceHandler struct {
	svc otp.Service
}

func NewOTPMaintenanceHandler(svc otp.Service) *OTPMaintenanceHandler {
	return &OTPMaintenanceHandler{svc: svc}
}

func (h *OTPMaintenanceHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.CleanupExpiredVerified(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: fmt.Sprintf("removed %d stale records", n)})
}
