package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"practice-ledger/internal/security"
)

// Handlers groups everything the router dispatches to.
type Handlers struct {
	Payments      *PaymentHandler
	Clients       *ClientHandler
	Webhooks      *WebhookHandler
	Receipts      *ReceiptHandler
	Notifications *NotificationHandler
}

// NewRouter registers every route. Route templates must match the keys of
// config.RouteSecurityConfig; unknown templates require an access token.
func NewRouter(h Handlers, tokenManager security.TokenManager) *mux.Router {
	router := mux.NewRouter()
	router.Use(recoverer, requestLogger)
	auth := &authMiddleware{tokenManager: tokenManager}
	router.Use(auth.Middleware)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	router.HandleFunc("/webhooks/payments", h.Webhooks.Payments).Methods(http.MethodPost)
	router.HandleFunc("/receipts/{key:.+}", h.Receipts.Download).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/payments", h.Payments.Create).Methods(http.MethodPost)
	api.HandleFunc("/payments/pay-client-debts", h.Payments.PayClientDebts).Methods(http.MethodPost)
	api.HandleFunc("/payments/{id}", h.Payments.Get).Methods(http.MethodGet)
	api.HandleFunc("/payments/{id}", h.Payments.Apply).Methods(http.MethodPut)
	api.HandleFunc("/payments/{id}/receipt", h.Payments.IssueReceipt).Methods(http.MethodPost)

	api.HandleFunc("/clients/{id}/payments", h.Clients.Payments).Methods(http.MethodGet)
	api.HandleFunc("/clients/{id}/debt", h.Clients.Debt).Methods(http.MethodGet)
	api.HandleFunc("/clients/{id}/credit", h.Clients.Credit).Methods(http.MethodGet)

	api.HandleFunc("/notifications", h.Notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/read", h.Notifications.MarkAsRead).Methods(http.MethodPost)

	return router
}
