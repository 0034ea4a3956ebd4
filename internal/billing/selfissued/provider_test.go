package selfissued

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practice-ledger/internal/billing"
	"practice-ledger/internal/domain"
	"practice-ledger/internal/storage"
)

// memCounter mimics the accounts row: the tx mutex plays the row lock and
// a failed transaction restores the previous value.
type memCounter struct {
	txMu sync.Mutex
	next int
}

func (c *memCounter) NextReceiptNumber(ctx context.Context, accountID int64) (int, error) {
	n := c.next
	c.next++
	return n, nil
}

func (c *memCounter) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	c.txMu.Lock()
	defer c.txMu.Unlock()
	saved := c.next
	if err := fn(ctx); err != nil {
		c.next = saved
		return err
	}
	return nil
}

type failingStore struct{ storage.DocumentStore }

func (failingStore) Save(ctx context.Context, key, contentType string, r io.Reader) error {
	return errors.New("disk full")
}

func newProvider(t *testing.T, counter *memCounter, store storage.DocumentStore) *Provider {
	t.Helper()
	p := New(&domain.Account{ID: 3, Name: "Harbor Physio"}, counter, counter, store)
	p.now = func() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) }
	return p
}

func TestCreateReceipt_ConcurrentNumbersAreUniqueAndSequential(t *testing.T) {
	store, err := storage.NewLocalStorage("http://ledger.test", t.TempDir())
	require.NoError(t, err)
	counter := &memCounter{next: 1}
	p := newProvider(t, counter, store)

	const workers = 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.CreateReceipt(context.Background(), billing.ReceiptRequest{
				AccountID:  3,
				PaymentID:  int64(i + 1),
				ClientName: "Dana",
				Amount:     decimal.NewFromInt(120),
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers = append(numbers, res.Number)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	sort.Strings(numbers)
	require.Len(t, numbers, workers)
	for i, n := range numbers {
		assert.Equal(t, fmt.Sprintf("2026-%04d", i+1), n)
	}
	assert.Equal(t, workers+1, counter.next)
}

func TestCreateReceipt_StorageFailureDoesNotConsumeNumber(t *testing.T) {
	counter := &memCounter{next: 7}
	p := newProvider(t, counter, failingStore{})

	_, err := p.CreateReceipt(context.Background(), billing.ReceiptRequest{PaymentID: 1, Amount: decimal.NewFromInt(10)})
	require.Error(t, err)

	var perr *domain.ProviderError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, 7, counter.next)
}

func TestCreateReceipt_RendersDocument(t *testing.T) {
	store, err := storage.NewLocalStorage("http://ledger.test", t.TempDir())
	require.NoError(t, err)
	p := newProvider(t, &memCounter{next: 12}, store)

	res, err := p.CreateReceipt(context.Background(), billing.ReceiptRequest{
		PaymentID:   9,
		ClientName:  "<Dana>",
		Amount:      decimal.RequireFromString("150.5"),
		Description: "Session 2026-05-01",
		Method:      domain.PaymentMethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-0012", res.Number)
	assert.Equal(t, "http://ledger.test/receipts/3/2026-0012.html", res.URL)

	rc, err := store.Open(context.Background(), "3/2026-0012.html")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.True(t, strings.Contains(string(body), "150.50"))
	assert.True(t, strings.Contains(string(body), "&lt;Dana&gt;"))
}
