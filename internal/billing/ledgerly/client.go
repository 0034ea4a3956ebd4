// Package ledgerly talks to the Ledgerly document API. Account credentials
// are exchanged for a short-lived bearer token that is cached until expiry.
package ledgerly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"practice-ledger/internal/billing"
	"practice-ledger/internal/cache"
	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
)

const (
	docTypeReceipt        = 400
	docTypeInvoiceReceipt = 320

	// refresh a little before the provider would reject the token
	tokenSkew = 30 * time.Second
)

var errUnauthorized = errors.New("ledgerly: unauthorized")

type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	tokens    cache.TokenCache
	group     *singleflight.Group
	now       func() time.Time
}

// NewClient builds a client for one account. group may be shared between
// clients so concurrent refreshes of the same key collapse into one call.
func NewClient(baseURL, apiKey, apiSecret string, httpClient *http.Client, tokens cache.TokenCache, group *singleflight.Group) *Client {
	if group == nil {
		group = &singleflight.Group{}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      httpClient,
		tokens:    tokens,
		group:     group,
		now:       time.Now,
	}
}

func (c *Client) tokenKey() string { return "ledgerly:token:" + c.apiKey }

type tokenResponse struct {
	Token string `json:"token"`
}

func (c *Client) token(ctx context.Context) (string, error) {
	tok, err := c.tokens.Get(ctx, c.tokenKey())
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logger.WarnContext(ctx, "Token cache unavailable, requesting a new token", "error", err)
	}

	v, err, _ := c.group.Do(c.tokenKey(), func() (any, error) {
		return c.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	logger.ExternalServiceCall("ledgerly", "token")

	body, _ := json.Marshal(map[string]string{"id": c.apiKey, "secret": c.apiSecret})
	var out tokenResponse
	err := c.do(ctx, http.MethodPost, "/account/token", "", body, &out)
	logger.ExternalServiceResult("ledgerly", "token", err)
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("ledgerly: empty token")
	}

	// the token is ours to read, not to verify
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(out.Token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			if ttl := exp.Sub(c.now()) - tokenSkew; ttl > 0 {
				if err := c.tokens.Set(ctx, c.tokenKey(), out.Token, ttl); err != nil {
					logger.WarnContext(ctx, "Failed to cache provider token", "error", err)
				}
			}
		}
	}
	return out.Token, nil
}

type documentBody struct {
	Type     int           `json:"type"`
	Lang     string        `json:"lang"`
	Currency string        `json:"currency"`
	Client   clientBody    `json:"client"`
	Income   []incomeLine  `json:"income"`
	Payment  []paymentLine `json:"payment"`
	Remarks  string        `json:"remarks,omitempty"`
	Email    bool          `json:"emailContent"`
}

type clientBody struct {
	Name   string   `json:"name"`
	Emails []string `json:"emails,omitempty"`
	Phone  string   `json:"phone,omitempty"`
}

type incomeLine struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
}

type paymentLine struct {
	Type     int     `json:"type"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Date     string  `json:"date"`
}

type documentResponse struct {
	ID     string      `json:"id"`
	Number json.Number `json:"number"`
	URL    struct {
		Origin string `json:"origin"`
	} `json:"url"`
}

func (c *Client) CreateDocument(ctx context.Context, req billing.DocumentRequest) (*billing.Document, error) {
	price, _ := req.Amount.Float64()
	docType := docTypeReceipt
	if req.Type == billing.DocumentInvoiceReceipt {
		docType = docTypeInvoiceReceipt
	}
	b := documentBody{
		Type:     docType,
		Lang:     "en",
		Currency: req.Currency,
		Client:   clientBody{Name: req.ClientName, Phone: req.Phone},
		Income: []incomeLine{{
			Description: req.Description,
			Quantity:    1,
			Price:       price,
			Currency:    req.Currency,
		}},
		Payment: []paymentLine{{
			Type:     paymentType(req.Method),
			Price:    price,
			Currency: req.Currency,
			Date:     c.now().UTC().Format("2006-01-02"),
		}},
		Remarks: req.Reference,
		Email:   req.SendEmail,
	}
	if req.Email != "" {
		b.Client.Emails = []string{req.Email}
	}
	body, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}

	logger.ExternalServiceCall("ledgerly", "create_document", "reference", req.Reference)
	out, err := c.createDocument(ctx, body)
	if errors.Is(err, errUnauthorized) {
		// cached token was revoked early; one fresh attempt
		_ = c.tokens.Delete(ctx, c.tokenKey())
		out, err = c.createDocument(ctx, body)
	}
	logger.ExternalServiceResult("ledgerly", "create_document", err, "reference", req.Reference)
	if err != nil {
		return nil, err
	}
	return &billing.Document{ID: out.ID, Number: out.Number.String(), URL: out.URL.Origin}, nil
}

func (c *Client) createDocument(ctx context.Context, body []byte) (*documentResponse, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	var out documentResponse
	if err := c.do(ctx, http.MethodPost, "/documents", tok, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ledgerly: %s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func paymentType(m domain.PaymentMethod) int {
	switch m {
	case domain.PaymentMethodCash:
		return 1
	case domain.PaymentMethodCheck:
		return 2
	case domain.PaymentMethodCard:
		return 3
	case domain.PaymentMethodTransfer:
		return 4
	default:
		return 11
	}
}
