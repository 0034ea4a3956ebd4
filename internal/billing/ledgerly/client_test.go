package ledgerly

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practice-ledger/internal/billing"
	"practice-ledger/internal/cache"
	"practice-ledger/internal/domain"
)

func issueToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "key-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("provider-side-secret"))
	require.NoError(t, err)
	return tok
}

type fakeLedgerly struct {
	tokenCalls atomic.Int32
	docCalls   atomic.Int32
	rejectOnce atomic.Bool
	token      string
	lastBody   documentBody
}

func (f *fakeLedgerly) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/account/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["id"] != "key-1" || creds["secret"] != "secret-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": f.token})
	})
	mux.HandleFunc("/documents", func(w http.ResponseWriter, r *http.Request) {
		f.docCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+f.token || f.rejectOnce.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastBody))
		w.Write([]byte(`{"id":"doc-77","number":10042,"url":{"origin":"https://docs.ledgerly.test/doc-77.pdf"}}`))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeLedgerly) (*Client, *cache.MemoryCache) {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	tokens := cache.NewMemoryCache()
	return NewClient(srv.URL, "key-1", "secret-1", srv.Client(), tokens, nil), tokens
}

func request() billing.DocumentRequest {
	return billing.DocumentRequest{
		Type:        billing.DocumentReceipt,
		ClientName:  "Dana Levi",
		Email:       "dana@example.com",
		Amount:      decimal.RequireFromString("250.00"),
		Currency:    billing.Currency,
		Description: "Session 2026-05-01",
		Method:      domain.PaymentMethodCard,
		SendEmail:   true,
		Reference:   "payment-9",
	}
}

func TestCreateDocument_CachesToken(t *testing.T) {
	f := &fakeLedgerly{token: issueToken(t, time.Now().Add(time.Hour))}
	c, tokens := newTestClient(t, f)
	ctx := context.Background()

	doc, err := c.CreateDocument(ctx, request())
	require.NoError(t, err)
	assert.Equal(t, "10042", doc.Number)
	assert.Equal(t, "https://docs.ledgerly.test/doc-77.pdf", doc.URL)

	_, err = c.CreateDocument(ctx, request())
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.tokenCalls.Load())
	assert.Equal(t, int32(2), f.docCalls.Load())

	cached, err := tokens.Get(ctx, "ledgerly:token:key-1")
	require.NoError(t, err)
	assert.Equal(t, f.token, cached)

	assert.Equal(t, docTypeReceipt, f.lastBody.Type)
	assert.Equal(t, 3, f.lastBody.Payment[0].Type)
	assert.Equal(t, []string{"dana@example.com"}, f.lastBody.Client.Emails)
	assert.True(t, f.lastBody.Email)
}

func TestCreateDocument_ExpiredTokenNotCached(t *testing.T) {
	f := &fakeLedgerly{token: issueToken(t, time.Now().Add(10*time.Second))}
	c, tokens := newTestClient(t, f)

	_, err := c.CreateDocument(context.Background(), request())
	require.NoError(t, err)

	_, err = tokens.Get(context.Background(), "ledgerly:token:key-1")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestCreateDocument_RefreshesRevokedToken(t *testing.T) {
	f := &fakeLedgerly{token: issueToken(t, time.Now().Add(time.Hour))}
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	_, err := c.CreateDocument(ctx, request())
	require.NoError(t, err)

	f.rejectOnce.Store(true)
	_, err = c.CreateDocument(ctx, request())
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestCreateDocument_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-1", "secret-1", srv.Client(), cache.NewMemoryCache(), nil)
	_, err := c.CreateDocument(context.Background(), request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
