package http

import (
	"errors"
	"io"
	"net/http"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/service"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives signed provider callbacks. The signature covers the
// raw body, so the body is read once and handed over untouched.
type WebhookHandler struct {
	webhooks service.WebhookService
}

func NewWebhookHandler(webhooks service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

func (h *WebhookHandler) Payments(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "body too large"})
		return
	}

	ev, err := h.webhooks.Process(r.Context(), body, r.Header.Get("X-Signature"))
	if err != nil {
		if errors.Is(err, domain.ErrWebhookAuth) {
			logger.WarnContext(r.Context(), "Rejected unsigned webhook", "remote", r.RemoteAddr)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"event_id": ev.EventID, "state": string(ev.State)})
}
