package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/service"
)

type createPaymentRequest struct {
	ClientID       int64           `json:"clientId"`
	SessionID      *int64          `json:"sessionId"`
	Amount         decimal.Decimal `json:"amount"`
	ExpectedAmount decimal.Decimal `json:"expectedAmount"`
	Method         string          `json:"method"`
	PaymentType    string          `json:"paymentType"`
	CreditUsed     decimal.Decimal `json:"creditUsed"`
	Notes          string          `json:"notes"`
}

type applyPaymentRequest struct {
	AdditionalAmount decimal.Decimal `json:"additionalAmount"`
	Method           string          `json:"method"`
	IssueReceipt     bool            `json:"issueReceipt"`
}

type lumpPaymentRequest struct {
	ClientID    int64           `json:"clientId"`
	PaymentIDs  []int64         `json:"paymentIds"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Method      string          `json:"method"`
	Mode        string          `json:"mode"`
	CreditUsed  decimal.Decimal `json:"creditUsed"`
}

// PaymentHandler serves the ledger endpoints.
type PaymentHandler struct {
	ledger   service.LedgerService
	receipts service.ReceiptService
}

func NewPaymentHandler(ledger service.LedgerService, receipts service.ReceiptService) *PaymentHandler {
	return &PaymentHandler{ledger: ledger, receipts: receipts}
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req createPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	method, err := parseMethod(req.Method)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.ledger.Create(r.Context(), principal.AccountID, service.CreatePaymentInput{
		ClientID:       req.ClientID,
		SessionID:      req.SessionID,
		Amount:         req.Amount,
		ExpectedAmount: req.ExpectedAmount,
		Method:         method,
		Type:           domain.PaymentType(req.PaymentType),
		CreditUsed:     req.CreditUsed,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.ledger.GetPayment(r.Context(), principal.AccountID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentHandler) Apply(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req applyPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	method, err := parseMethod(req.Method)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.ledger.ApplyPayment(r.Context(), principal.AccountID, id, service.ApplyPaymentInput{
		AdditionalAmount: req.AdditionalAmount,
		Method:           method,
		IssueReceipt:     req.IssueReceipt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// IssueReceipt asks the provider again and, unlike the ledger calls, reports
// a provider failure to the caller.
func (h *PaymentHandler) IssueReceipt(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.receipts.IssueReceipt(r.Context(), principal.AccountID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentHandler) PayClientDebts(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req lumpPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	method, err := parseMethod(req.Method)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report, err := h.ledger.DistributeLumpPayment(r.Context(), principal.AccountID, service.LumpPaymentInput{
		ClientID:    req.ClientID,
		PaymentIDs:  req.PaymentIDs,
		TotalAmount: req.TotalAmount,
		Method:      method,
		Mode:        domain.LumpMode(req.Mode),
		CreditUsed:  req.CreditUsed,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// parseMethod accepts the web client's lower-case names; empty means "let the
// ledger decide".
func parseMethod(s string) (domain.PaymentMethod, error) {
	if s == "" {
		return "", nil
	}
	m, ok := domain.ParsePaymentMethod(s)
	if !ok {
		return "", domain.NewValidationError("method", "unknown payment method %q", s)
	}
	return m, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}
