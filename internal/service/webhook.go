package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/events"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository"
)

// WebhookPayload is the provider's delivery body.
type WebhookPayload struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
	Data      WebhookData `json:"data"`
}

type WebhookData struct {
	CorrelationID string           `json:"correlation_id"`
	Scope         string           `json:"scope"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Method        string           `json:"method,omitempty"`
	Customer      struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer"`
	Document *struct {
		ID     string `json:"id"`
		Number string `json:"number"`
		URL    string `json:"url"`
		PDFURL string `json:"pdf_url"`
	} `json:"document,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Sign returns the X-Signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the HMAC-SHA256 of body in constant time.
func VerifySignature(secret, body []byte, header string) error {
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return domain.ErrWebhookAuth
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return domain.ErrWebhookAuth
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domain.ErrWebhookAuth
	}
	return nil
}

type webhookService struct {
	secret      []byte
	provider    string
	tx          repository.TxManager
	accountRepo repository.AccountRepository
	paymentRepo repository.PaymentRepository
	eventRepo   repository.WebhookEventRepository
	receipts    ReceiptService
	publisher   events.Publisher
	now         func() time.Time
}

func NewWebhookService(
	secret, provider string,
	tx repository.TxManager,
	accountRepo repository.AccountRepository,
	paymentRepo repository.PaymentRepository,
	eventRepo repository.WebhookEventRepository,
	receipts ReceiptService,
	publisher events.Publisher,
) WebhookService {
	return &webhookService{
		secret:      []byte(secret),
		provider:    provider,
		tx:          tx,
		accountRepo: accountRepo,
		paymentRepo: paymentRepo,
		eventRepo:   eventRepo,
		receipts:    receipts,
		publisher:   publisher,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// outcome collects what a handled event wants done after commit.
type outcome struct {
	notifications []domain.Notification
	issueReceipt  *domain.Payment
}

func (s *webhookService) Process(ctx context.Context, body []byte, signature string) (*domain.WebhookEvent, error) {
	if err := VerifySignature(s.secret, body, signature); err != nil {
		logger.WarnContext(ctx, "Webhook signature rejected")
		return nil, err
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.NewValidationError("body", "malformed webhook payload")
	}
	if payload.ID == "" || payload.Type == "" {
		return nil, domain.NewValidationError("body", "event id and type are required")
	}
	logger.InfoContext(ctx, "Webhook received", "eventID", payload.ID, "type", payload.Type)

	var (
		ev  *domain.WebhookEvent
		out outcome
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := s.now()
		if _, err := s.eventRepo.Record(ctx, &domain.WebhookEvent{
			Provider:   s.provider,
			EventID:    payload.ID,
			EventType:  payload.Type,
			Payload:    body,
			State:      domain.WebhookStateReceived,
			ReceivedAt: now,
		}); err != nil {
			return err
		}

		// the row lock serializes concurrent redeliveries of one event
		var err error
		ev, err = s.eventRepo.GetForUpdate(ctx, s.provider, payload.ID)
		if err != nil {
			return err
		}
		if ev.State.Final() {
			logger.InfoContext(ctx, "Webhook already processed", "eventID", ev.EventID, "state", ev.State)
			return nil
		}
		ev.State = domain.WebhookStateVerified

		out, err = s.apply(ctx, ev, &payload, now)
		if err != nil {
			return err
		}
		processedAt := now
		ev.ProcessedAt = &processedAt
		return s.eventRepo.Finish(ctx, ev)
	})
	if err != nil {
		logger.ErrorContext(ctx, "Webhook processing failed", "eventID", payload.ID, "error", err)
		return nil, err
	}

	if len(out.notifications) > 0 {
		evs := make([]events.Event, 0, len(out.notifications))
		for _, n := range out.notifications {
			evs = append(evs, events.NewNotification(n))
		}
		if err := s.publisher.Publish(ctx, evs...); err != nil {
			logger.ErrorContext(ctx, "Failed to publish webhook notifications", "eventID", ev.EventID, "error", err)
		}
	}
	if p := out.issueReceipt; p != nil {
		if _, err := s.receipts.IssueOnSettlement(ctx, p.AccountID, p.ID); err != nil {
			logger.WarnContext(ctx, "Receipt issuance failed", "paymentID", p.ID, "error", err)
		}
	}
	return ev, nil
}

func (s *webhookService) apply(ctx context.Context, ev *domain.WebhookEvent, payload *WebhookPayload, now time.Time) (outcome, error) {
	var out outcome

	payment, account, err := s.correlate(ctx, payload)
	if err != nil {
		return out, err
	}
	if payment == nil && account == nil {
		s.reject(ev, "no matching payment or account")
		return out, nil
	}
	if payment != nil {
		ev.PaymentID = &payment.ID
		ev.AccountID = &payment.AccountID
		if account, err = s.accountRepo.GetByID(ctx, payment.AccountID); err != nil {
			return out, err
		}
	} else {
		ev.AccountID = &account.ID
	}

	switch payload.Type {
	case domain.EventPaymentSuccess:
		if payment == nil {
			return s.subscriptionPaid(ctx, ev, account)
		}
		return s.paymentSucceeded(ctx, ev, payload, account, payment, now)
	case domain.EventPaymentFailed:
		if payment == nil {
			return s.subscriptionFailed(ctx, ev, payload, account)
		}
		payment.AppendNote(failureNote(payload), now)
		if err := s.paymentRepo.UpdateNotes(ctx, payment.ID, payment.Notes); err != nil {
			return out, err
		}
		out.notifications = append(out.notifications, domain.Notification{
			UserID:     account.OwnerUserID,
			AccountID:  account.ID,
			Type:       domain.NotificationPaymentFailed,
			Title:      "Payment failed",
			Content:    failureNote(payload),
			Priority:   domain.PriorityNormal,
			Attributes: map[string]string{"payment_id": fmt.Sprint(payment.ID), "event_id": ev.EventID},
		})
	case domain.EventDocumentCreated:
		if payment == nil || payload.Data.Document == nil {
			s.reject(ev, "document event without payment or document")
			return out, nil
		}
		if err := s.attachDocument(ctx, payment, payload); err != nil {
			return out, err
		}
	default:
		s.reject(ev, fmt.Sprintf("unsupported event type %q", payload.Type))
		return out, nil
	}

	ev.State = domain.WebhookStateApplied
	return out, nil
}

// correlate finds the payment by its round-tripped token, falling back to the
// account by customer email for subscription events.
func (s *webhookService) correlate(ctx context.Context, payload *WebhookPayload) (*domain.Payment, *domain.Account, error) {
	if token := payload.Data.CorrelationID; token != "" {
		p, err := s.paymentRepo.GetByCorrelationTokenForUpdate(ctx, token)
		if err == nil {
			return p, nil, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, nil, err
		}
	}
	if payload.Data.Scope == domain.EventScopeSubscription && payload.Data.Customer.Email != "" {
		a, err := s.accountRepo.GetByEmail(ctx, payload.Data.Customer.Email)
		if err == nil {
			return nil, a, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func (s *webhookService) paymentSucceeded(ctx context.Context, ev *domain.WebhookEvent, payload *WebhookPayload, account *domain.Account, p *domain.Payment, now time.Time) (outcome, error) {
	var out outcome
	ev.State = domain.WebhookStateApplied

	if p.IsPaid() {
		// redelivery or a race with manual entry; only a missing document may still land
		return out, s.attachDocument(ctx, p, payload)
	}

	increment := p.Debt()
	if payload.Data.Amount != nil && payload.Data.Amount.IsPositive() {
		increment = *payload.Data.Amount
	}
	method := domain.PaymentMethodCard
	if m, ok := domain.ParsePaymentMethod(payload.Data.Method); ok {
		method = m
	}

	becamePaid, err := applyIncrement(ctx, s.paymentRepo, p, increment, method, now)
	if err != nil {
		return out, err
	}
	if err := s.attachDocument(ctx, p, payload); err != nil {
		return out, err
	}

	out.notifications = append(out.notifications, domain.Notification{
		UserID:     account.OwnerUserID,
		AccountID:  account.ID,
		Type:       domain.NotificationPaymentReceived,
		Title:      "Payment received",
		Content:    fmt.Sprintf("%s received online for payment #%d", increment.StringFixed(2), p.ID),
		Priority:   domain.PriorityNormal,
		Attributes: map[string]string{"payment_id": fmt.Sprint(p.ID), "event_id": ev.EventID},
	})
	if becamePaid && !p.HasReceipt && !account.UsesExternalProvider() {
		out.issueReceipt = p
	}
	return out, nil
}

func (s *webhookService) attachDocument(ctx context.Context, p *domain.Payment, payload *WebhookPayload) error {
	doc := payload.Data.Document
	if doc == nil || p.HasReceipt {
		return nil
	}
	number, url := doc.Number, doc.PDFURL
	if number == "" {
		number = doc.ID
	}
	if url == "" {
		url = doc.URL
	}
	attached, err := s.paymentRepo.AttachReceipt(ctx, p.ID, number, url)
	if err != nil {
		return err
	}
	if attached {
		p.ReceiptNumber, p.ReceiptURL, p.HasReceipt = number, url, true
	}
	return nil
}

func (s *webhookService) subscriptionPaid(ctx context.Context, ev *domain.WebhookEvent, account *domain.Account) (outcome, error) {
	ev.State = domain.WebhookStateApplied
	if account.SubscriptionStatus == domain.SubscriptionPastDue {
		return outcome{}, s.accountRepo.UpdateSubscriptionStatus(ctx, account.ID, domain.SubscriptionActive)
	}
	return outcome{}, nil
}

func (s *webhookService) subscriptionFailed(ctx context.Context, ev *domain.WebhookEvent, payload *WebhookPayload, account *domain.Account) (outcome, error) {
	ev.State = domain.WebhookStateApplied
	if err := s.accountRepo.UpdateSubscriptionStatus(ctx, account.ID, domain.SubscriptionPastDue); err != nil {
		return outcome{}, err
	}
	return outcome{notifications: []domain.Notification{{
		UserID:     account.OwnerUserID,
		AccountID:  account.ID,
		Type:       domain.NotificationSubscriptionPastDue,
		Title:      "Subscription payment failed",
		Content:    "Your subscription is past due. " + failureNote(payload),
		Priority:   domain.PriorityHigh,
		Attributes: map[string]string{"event_id": ev.EventID},
	}}}, nil
}

func (s *webhookService) reject(ev *domain.WebhookEvent, reason string) {
	logger.Warn("Webhook rejected", "eventID", ev.EventID, "type", ev.EventType, "reason", reason)
	ev.State = domain.WebhookStateRejected
	ev.Error = reason
}

func failureNote(payload *WebhookPayload) string {
	reason := payload.Data.FailureReason
	if reason == "" {
		reason = "no reason given"
	}
	return fmt.Sprintf("Online payment failed (event %s): %s", payload.ID, reason)
}
