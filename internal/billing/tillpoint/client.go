// Package tillpoint talks to the Tillpoint receipts API using a static
// API token and company id.
package tillpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"practice-ledger/internal/billing"
	"practice-ledger/internal/logger"
)

type Client struct {
	baseURL   string
	apiKey    string
	companyID string
	http      *http.Client
}

func NewClient(baseURL, apiKey, companyID string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		companyID: companyID,
		http:      httpClient,
	}
}

type customer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type item struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

type payment struct {
	Method string `json:"method"`
	Amount string `json:"amount"`
}

type documentRequest struct {
	Type      string    `json:"type"`
	Currency  string    `json:"currency"`
	Customer  customer  `json:"customer"`
	Items     []item    `json:"items"`
	Payments  []payment `json:"payments"`
	SendEmail bool      `json:"send_email"`
	Reference string    `json:"reference,omitempty"`
}

type documentResponse struct {
	ID     string `json:"id"`
	Number string `json:"document_number"`
	URL    string `json:"url"`
	PDFURL string `json:"pdf_url"`
}

func (c *Client) CreateDocument(ctx context.Context, req billing.DocumentRequest) (*billing.Document, error) {
	amount := req.Amount.StringFixed(2)
	body, err := json.Marshal(documentRequest{
		Type:      string(req.Type),
		Currency:  req.Currency,
		Customer:  customer{Name: req.ClientName, Email: req.Email, Phone: req.Phone},
		Items:     []item{{Description: req.Description, Amount: amount}},
		Payments:  []payment{{Method: strings.ToLower(string(req.Method)), Amount: amount}},
		SendEmail: req.SendEmail,
		Reference: req.Reference,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/documents", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Company-Id", c.companyID)

	logger.ExternalServiceCall("tillpoint", "create_document", "reference", req.Reference)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		logger.ExternalServiceResult("tillpoint", "create_document", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("tillpoint: create document: %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		logger.ExternalServiceResult("tillpoint", "create_document", err)
		return nil, err
	}

	var out documentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tillpoint: decode response: %w", err)
	}
	logger.ExternalServiceResult("tillpoint", "create_document", nil, "documentID", out.ID)
	return &billing.Document{ID: out.ID, Number: out.Number, URL: out.URL, PDFURL: out.PDFURL}, nil
}
