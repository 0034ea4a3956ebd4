package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"practice-ledger/internal/billing"
	"practice-ledger/internal/domain"
	"practice-ledger/internal/events"
)

// memStore is an in-memory stand-in for PostgreSQL. Transactions are
// serialized by one lock and roll back by restoring a snapshot.
type memStore struct {
	mu       sync.Mutex
	accounts map[int64]domain.Account
	clients  map[int64]domain.Client
	sessions map[int64]domain.Session
	payments map[int64]domain.Payment
	webhooks map[string]domain.WebhookEvent
	logs     []domain.CommunicationLog
	notifs   []domain.Notification
	nextID   int64
	calls    atomic.Int64
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[int64]domain.Account{},
		clients:  map[int64]domain.Client{},
		sessions: map[int64]domain.Session{},
		payments: map[int64]domain.Payment{},
		webhooks: map[string]domain.WebhookEvent{},
		nextID:   100,
	}
}

type memSnapshot struct {
	accounts map[int64]domain.Account
	clients  map[int64]domain.Client
	payments map[int64]domain.Payment
	webhooks map[string]domain.WebhookEvent
	nextID   int64
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{copyMap(s.accounts), copyMap(s.clients), copyMap(s.payments), copyMap(s.webhooks), s.nextID}
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.accounts, s.clients, s.payments, s.webhooks, s.nextID = snap.accounts, snap.clients, snap.payments, snap.webhooks, snap.nextID
		return err
	}
	return nil
}

// lock takes the store lock for calls made outside a transaction.
func (s *memStore) lock(ctx context.Context) func() {
	s.calls.Add(1)
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

// --- seeding helpers ---

func (s *memStore) addAccount(a domain.Account) *domain.Account {
	s.accounts[a.ID] = a
	return &a
}

func (s *memStore) addClient(c domain.Client) {
	s.clients[c.ID] = c
}

func (s *memStore) addSession(sess domain.Session) {
	s.sessions[sess.ID] = sess
}

func (s *memStore) addPayment(p domain.Payment) int64 {
	if p.ID == 0 {
		p.ID = s.id()
	}
	if p.Status == "" {
		p.Status = domain.DeriveStatus(p.Amount, p.ExpectedAmount)
	}
	if p.Type == "" {
		p.Type = domain.PaymentTypeFull
	}
	s.payments[p.ID] = p
	return p.ID
}

func (s *memStore) payment(id int64) domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[id]
}

func (s *memStore) client(id int64) domain.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[id]
}

func (s *memStore) children(parentID int64) []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Payment
	for _, p := range s.payments {
		if p.ParentPaymentID != nil && *p.ParentPaymentID == parentID {
			out = append(out, p)
		}
	}
	return out
}

// --- accounts ---

type memAccounts struct{ *memStore }

func (r memAccounts) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	defer r.lock(ctx)()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.NotFound("account", id)
	}
	return &a, nil
}

func (r memAccounts) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	defer r.lock(ctx)()
	for _, a := range r.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, domain.NotFound("account", email)
}

func (r memAccounts) ListWithRemindersEnabled(ctx context.Context) ([]domain.Account, error) {
	defer r.lock(ctx)()
	var out []domain.Account
	for _, a := range r.accounts {
		if a.RemindersEnabled {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAccounts) NextReceiptNumber(ctx context.Context, accountID int64) (int, error) {
	defer r.lock(ctx)()
	a, ok := r.accounts[accountID]
	if !ok {
		return 0, domain.NotFound("account", accountID)
	}
	n := a.NextReceiptNumber
	a.NextReceiptNumber++
	r.accounts[accountID] = a
	return n, nil
}

func (r memAccounts) UpdateSubscriptionStatus(ctx context.Context, accountID int64, status domain.SubscriptionStatus) error {
	defer r.lock(ctx)()
	a, ok := r.accounts[accountID]
	if !ok {
		return domain.NotFound("account", accountID)
	}
	a.SubscriptionStatus = status
	r.accounts[accountID] = a
	return nil
}

// --- clients ---

type memClients struct{ *memStore }

func (r memClients) GetByID(ctx context.Context, accountID, clientID int64) (*domain.Client, error) {
	defer r.lock(ctx)()
	c, ok := r.clients[clientID]
	if !ok || c.AccountID != accountID {
		return nil, domain.NotFound("client", clientID)
	}
	return &c, nil
}

func (r memClients) GetForUpdate(ctx context.Context, accountID, clientID int64) (*domain.Client, error) {
	return r.GetByID(ctx, accountID, clientID)
}

func (r memClients) IncreaseCredit(ctx context.Context, accountID, clientID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	defer r.lock(ctx)()
	c, ok := r.clients[clientID]
	if !ok || c.AccountID != accountID {
		return decimal.Zero, domain.NotFound("client", clientID)
	}
	c.CreditBalance = c.CreditBalance.Add(amount)
	r.clients[clientID] = c
	return c.CreditBalance, nil
}

func (r memClients) DecreaseCredit(ctx context.Context, accountID, clientID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	defer r.lock(ctx)()
	c, ok := r.clients[clientID]
	if !ok || c.AccountID != accountID {
		return decimal.Zero, domain.NotFound("client", clientID)
	}
	if c.CreditBalance.LessThan(amount) {
		return decimal.Zero, &domain.InsufficientCreditError{ClientID: clientID, Available: c.CreditBalance, Requested: amount}
	}
	c.CreditBalance = c.CreditBalance.Sub(amount)
	r.clients[clientID] = c
	return c.CreditBalance, nil
}

// --- sessions ---

type memSessions struct{ *memStore }

func (r memSessions) GetByID(ctx context.Context, accountID, sessionID int64) (*domain.Session, error) {
	defer r.lock(ctx)()
	sess, ok := r.sessions[sessionID]
	if !ok || sess.AccountID != accountID {
		return nil, domain.NotFound("session", sessionID)
	}
	return &sess, nil
}

func (r memSessions) ListUnpaidBillable(ctx context.Context, accountID, clientID int64) ([]domain.Session, error) {
	defer r.lock(ctx)()
	var out []domain.Session
	for _, sess := range r.sessions {
		if sess.AccountID == accountID && sess.ClientID == clientID && sess.IsBillable() && !r.sessionPaid(sess.ID) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (s *memStore) sessionPaid(sessionID int64) bool {
	for _, p := range s.payments {
		if p.SessionID != nil && *p.SessionID == sessionID && p.ParentPaymentID == nil {
			return true
		}
	}
	return false
}

// --- payments ---

type memPayments struct{ *memStore }

func (r memPayments) Create(ctx context.Context, p *domain.Payment) error {
	defer r.lock(ctx)()
	if p.SessionID != nil && p.ParentPaymentID == nil && r.sessionPaid(*p.SessionID) {
		return domain.NewValidationError("session_id", "session already has a payment")
	}
	p.ID = r.id()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	r.payments[p.ID] = *p
	return nil
}

func (r memPayments) GetByID(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error) {
	defer r.lock(ctx)()
	p, ok := r.payments[paymentID]
	if !ok || p.AccountID != accountID {
		return nil, domain.NotFound("payment", paymentID)
	}
	return &p, nil
}

func (r memPayments) GetForUpdate(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error) {
	return r.GetByID(ctx, accountID, paymentID)
}

func (r memPayments) GetByCorrelationTokenForUpdate(ctx context.Context, token string) (*domain.Payment, error) {
	defer r.lock(ctx)()
	for _, p := range r.payments {
		if p.CorrelationToken == token && p.ParentPaymentID == nil {
			return &p, nil
		}
	}
	return nil, domain.NotFound("payment", token)
}

func (r memPayments) LockForClient(ctx context.Context, accountID, clientID int64, ids []int64) ([]*domain.Payment, error) {
	defer r.lock(ctx)()
	var out []*domain.Payment
	for _, id := range ids {
		p, ok := r.payments[id]
		if ok && p.AccountID == accountID && p.ClientID == clientID {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memPayments) ExistsForSession(ctx context.Context, sessionID int64) (bool, error) {
	defer r.lock(ctx)()
	return r.sessionPaid(sessionID), nil
}

func (r memPayments) UpdateProgress(ctx context.Context, p *domain.Payment) error {
	defer r.lock(ctx)()
	cur, ok := r.payments[p.ID]
	if !ok {
		return domain.NotFound("payment", p.ID)
	}
	cur.Amount, cur.Status, cur.Method, cur.PaidAt, cur.UpdatedAt = p.Amount, p.Status, p.Method, p.PaidAt, p.UpdatedAt
	r.payments[p.ID] = cur
	return nil
}

func (r memPayments) AttachReceipt(ctx context.Context, paymentID int64, number, url string) (bool, error) {
	defer r.lock(ctx)()
	cur, ok := r.payments[paymentID]
	if !ok || cur.HasReceipt {
		return false, nil
	}
	cur.ReceiptNumber, cur.ReceiptURL, cur.HasReceipt = number, url, true
	r.payments[paymentID] = cur
	return true, nil
}

func (r memPayments) UpdateNotes(ctx context.Context, paymentID int64, notes string) error {
	defer r.lock(ctx)()
	cur := r.payments[paymentID]
	cur.Notes = notes
	r.payments[paymentID] = cur
	return nil
}

func (r memPayments) ListByClient(ctx context.Context, accountID, clientID int64, includeAudit bool) ([]domain.Payment, error) {
	defer r.lock(ctx)()
	var out []domain.Payment
	for _, p := range r.payments {
		if p.AccountID == accountID && p.ClientID == clientID && (includeAudit || p.ParentPaymentID == nil) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memPayments) ListMissingReceipts(ctx context.Context, paidBefore time.Time, limit int) ([]domain.Payment, error) {
	defer r.lock(ctx)()
	var out []domain.Payment
	for _, p := range r.payments {
		if p.IsPaid() && !p.HasReceipt && p.ParentPaymentID == nil && p.Type != domain.PaymentTypeAdvance &&
			p.PaidAt != nil && p.PaidAt.Before(paidBefore) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memPayments) ListUnsettled(ctx context.Context, accountID int64) ([]domain.DebtItem, error) {
	defer r.lock(ctx)()
	var items []domain.DebtItem
	for _, p := range r.payments {
		c := r.clients[p.ClientID]
		if p.AccountID != accountID || p.IsPaid() || p.ParentPaymentID != nil || p.Type == domain.PaymentTypeAdvance || c.Email == "" {
			continue
		}
		id := p.ID
		items = append(items, domain.DebtItem{
			ClientID: c.ID, ClientName: c.Name, ClientEmail: c.Email, PaymentID: &id, SessionID: p.SessionID,
			ExpectedAmount: p.ExpectedAmount, Amount: p.Amount, CreatedAt: p.CreatedAt,
		})
	}
	for _, sess := range r.sessions {
		c := r.clients[sess.ClientID]
		if sess.AccountID != accountID || !sess.IsBillable() || r.sessionPaid(sess.ID) || c.Email == "" {
			continue
		}
		id, at := sess.ID, sess.StartsAt
		items = append(items, domain.DebtItem{
			ClientID: c.ID, ClientName: c.Name, ClientEmail: c.Email, SessionID: &id, SessionDate: &at,
			ExpectedAmount: sess.Price, Amount: decimal.Zero, CreatedAt: sess.CreatedAt,
		})
	}
	return items, nil
}

// --- webhook events ---

type memWebhooks struct{ *memStore }

func (r memWebhooks) Record(ctx context.Context, e *domain.WebhookEvent) (bool, error) {
	defer r.lock(ctx)()
	key := e.Provider + "/" + e.EventID
	if _, ok := r.webhooks[key]; ok {
		return false, nil
	}
	e.ID = r.id()
	r.webhooks[key] = *e
	return true, nil
}

func (r memWebhooks) GetForUpdate(ctx context.Context, provider, eventID string) (*domain.WebhookEvent, error) {
	defer r.lock(ctx)()
	e, ok := r.webhooks[provider+"/"+eventID]
	if !ok {
		return nil, domain.NotFound("webhook event", eventID)
	}
	return &e, nil
}

func (r memWebhooks) Finish(ctx context.Context, e *domain.WebhookEvent) error {
	defer r.lock(ctx)()
	r.webhooks[e.Provider+"/"+e.EventID] = *e
	return nil
}

// --- side-effect records ---

type memCommLogs struct{ *memStore }

func (r memCommLogs) Create(ctx context.Context, l *domain.CommunicationLog) error {
	defer r.lock(ctx)()
	l.ID = r.id()
	r.logs = append(r.logs, *l)
	return nil
}

type memNotifications struct{ *memStore }

func (r memNotifications) Create(ctx context.Context, n *domain.Notification) error {
	defer r.lock(ctx)()
	n.ID = r.id()
	r.notifs = append(r.notifs, *n)
	return nil
}

func (r memNotifications) ListByUser(ctx context.Context, userID int64, limit, offset int32) ([]domain.Notification, error) {
	defer r.lock(ctx)()
	var out []domain.Notification
	for _, n := range r.notifs {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r memNotifications) MarkAsRead(ctx context.Context, id, userID int64) error {
	defer r.lock(ctx)()
	for i := range r.notifs {
		if r.notifs[i].ID == id && r.notifs[i].UserID == userID {
			r.notifs[i].IsRead = true
			return nil
		}
	}
	return domain.NotFound("notification", id)
}

// --- collaborators ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeProvider struct {
	mu      sync.Mutex
	fail    bool
	emailed bool
	issued  []billing.ReceiptRequest
}

func (f *fakeProvider) Name() domain.BillingProvider { return domain.BillingProviderLedgerly }

func (f *fakeProvider) CreateReceipt(ctx context.Context, req billing.ReceiptRequest) (*billing.ReceiptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("provider unavailable")
	}
	f.issued = append(f.issued, req)
	n := len(f.issued)
	return &billing.ReceiptResult{
		Number:  fmt.Sprintf("R-%d", n),
		URL:     fmt.Sprintf("https://docs.test/r%d", n),
		Emailed: f.emailed,
	}, nil
}

func (f *fakeProvider) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.issued)
}

type fakeSelector struct{ provider billing.Provider }

func (s fakeSelector) ForAccount(ctx context.Context, account *domain.Account) (billing.Provider, error) {
	return s.provider, nil
}

// fixture wires the services over one memStore.
type fixture struct {
	store     *memStore
	provider  *fakeProvider
	publisher *recordingPublisher
	credit    CreditService
	receipts  ReceiptService
	ledger    *ledgerService
	webhooks  *webhookService
}

const (
	testAccountID = int64(1)
	testOwnerID   = int64(500)
	testClientID  = int64(10)
	webhookSecret = "whsec_test"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	store := newMemStore()
	store.addAccount(domain.Account{
		ID: testAccountID, OwnerUserID: testOwnerID, Name: "Harbor Physio", Email: "owner@harbor.test",
		BillingProvider: domain.BillingProviderSelf, NextReceiptNumber: 1, SubscriptionStatus: domain.SubscriptionActive,
	})
	store.addClient(domain.Client{ID: testClientID, AccountID: testAccountID, Name: "Dana Levi", Email: "dana@example.com"})

	f := &fixture{store: store, provider: &fakeProvider{}, publisher: &recordingPublisher{}}
	f.credit = NewCreditService(memClients{store})
	f.receipts = NewReceiptService(store, memAccounts{store}, memClients{store}, memSessions{store}, memPayments{store},
		fakeSelector{f.provider}, f.publisher, time.Second)
	f.ledger = NewLedgerService(store, memClients{store}, memSessions{store}, memPayments{store}, f.credit, f.receipts).(*ledgerService)
	f.ledger.now = func() time.Time { return baseTime.Add(24 * time.Hour) }
	f.webhooks = NewWebhookService(webhookSecret, "payments", store, memAccounts{store}, memPayments{store},
		memWebhooks{store}, f.receipts, f.publisher).(*webhookService)
	f.webhooks.now = f.ledger.now
	return f
}

// pending adds an unpaid charge created offset after baseTime.
func (f *fixture) pending(expected string, offset time.Duration) int64 {
	return f.store.addPayment(domain.Payment{
		AccountID:        testAccountID,
		ClientID:         testClientID,
		Amount:           decimal.Zero,
		ExpectedAmount:   decimal.RequireFromString(expected),
		Method:           domain.PaymentMethodOther,
		CorrelationToken: fmt.Sprintf("tok-%d", int64(offset/time.Minute)),
		CreatedAt:        baseTime.Add(offset),
	})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
