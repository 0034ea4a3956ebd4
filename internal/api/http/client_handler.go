package http

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"practice-ledger/internal/service"
)

type creditResponse struct {
	ClientID int64           `json:"client_id"`
	Balance  decimal.Decimal `json:"balance"`
}

// ClientHandler serves the per-client read endpoints.
type ClientHandler struct {
	ledger service.LedgerService
	credit service.CreditService
}

func NewClientHandler(ledger service.LedgerService, credit service.CreditService) *ClientHandler {
	return &ClientHandler{ledger: ledger, credit: credit}
}

func (h *ClientHandler) Payments(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	clientID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	includeAudit, _ := strconv.ParseBool(r.URL.Query().Get("includeAudit"))

	payments, err := h.ledger.ListClientPayments(r.Context(), principal.AccountID, clientID, includeAudit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (h *ClientHandler) Debt(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	clientID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	debt, err := h.ledger.GetClientDebt(r.Context(), principal.AccountID, clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

func (h *ClientHandler) Credit(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	clientID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	balance, err := h.credit.Balance(r.Context(), principal.AccountID, clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, creditResponse{ClientID: clientID, Balance: balance})
}
