package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/events"
	"practice-ledger/internal/logger"
)

// ReminderSummary is the outcome of one debt reminder run.
type ReminderSummary struct {
	AccountsProcessed int             `json:"accounts_processed"`
	RemindersSent     int             `json:"reminders_sent"`
	Skipped           int             `json:"skipped"`
	Errors            []ReminderError `json:"errors,omitempty"`
}

// ReminderError is a failure for one client, or for a whole account when
// ClientID is zero.
type ReminderError struct {
	AccountID int64  `json:"account_id"`
	ClientID  int64  `json:"client_id,omitempty"`
	Error     string `json:"error"`
}

func (s *ReminderSummary) fail(accountID, clientID int64, err error) {
	s.Errors = append(s.Errors, ReminderError{AccountID: accountID, ClientID: clientID, Error: err.Error()})
}

// SendDebtReminders emails every client with an outstanding balance on their
// account's reminder day.
func (jr *JobRunner) SendDebtReminders() {
	jr.runWithRecovery("SendDebtReminders", func(ctx context.Context) {
		summary := jr.RunDebtReminders(ctx, jr.now())
		logger.Info("Debt reminders finished",
			"accounts", summary.AccountsProcessed,
			"sent", summary.RemindersSent,
			"skipped", summary.Skipped,
			"errors", len(summary.Errors))
	})
}

// RunDebtReminders never stops on a single client's failure; errors land in
// the summary.
func (jr *JobRunner) RunDebtReminders(ctx context.Context, now time.Time) *ReminderSummary {
	summary := &ReminderSummary{}

	accounts, err := jr.repos.Accounts.ListWithRemindersEnabled(ctx)
	if err != nil {
		logger.Error("Failed to list accounts with reminders", "error", err)
		summary.fail(0, 0, err)
		return summary
	}

	for i := range accounts {
		account := &accounts[i]
		if !account.ReminderDue(now) {
			continue
		}
		if ctx.Err() != nil {
			summary.fail(account.ID, 0, ctx.Err())
			return summary
		}
		summary.AccountsProcessed++

		sent := jr.remindAccount(ctx, account, now, summary)
		if sent > 0 {
			jr.notifyOwner(ctx, account, sent)
		}
	}
	return summary
}

func (jr *JobRunner) remindAccount(ctx context.Context, account *domain.Account, now time.Time, summary *ReminderSummary) int {
	items, err := jr.repos.Payments.ListUnsettled(ctx, account.ID)
	if err != nil {
		logger.Error("Failed to load unsettled items", "account_id", account.ID, "error", err)
		summary.fail(account.ID, 0, err)
		return 0
	}

	sent := 0
	for _, debt := range domain.AggregateDebts(items) {
		if debt.Email == "" || !debt.Total.IsPositive() || debt.Total.LessThan(account.ReminderMinDebt) {
			summary.Skipped++
			continue
		}

		msg := reminderEmail(account, &debt)
		sendErr := jr.services.Email.Send(ctx, msg)
		if err := jr.repos.CommLogs.Create(ctx, reminderLog(&msg, sendErr, now)); err != nil {
			logger.Error("Failed to write communication log", "account_id", account.ID, "client_id", debt.ClientID, "error", err)
		}
		if sendErr != nil {
			logger.Error("Failed to send debt reminder",
				"account_id", account.ID,
				"client_id", debt.ClientID,
				"email", debt.Email,
				"error", sendErr)
			summary.fail(account.ID, debt.ClientID, sendErr)
			continue
		}

		sent++
		summary.RemindersSent++
		logger.Debug("Sent debt reminder", "account_id", account.ID, "client_id", debt.ClientID, "total", debt.Total)
	}
	return sent
}

func (jr *JobRunner) notifyOwner(ctx context.Context, account *domain.Account, sent int) {
	n := domain.Notification{
		UserID:     account.OwnerUserID,
		AccountID:  account.ID,
		Type:       domain.NotificationRemindersSent,
		Title:      "Debt reminders sent",
		Content:    fmt.Sprintf("%d clients were reminded about their outstanding balance.", sent),
		Priority:   domain.PriorityNormal,
		Attributes: map[string]string{"count": fmt.Sprint(sent)},
	}
	if err := jr.services.Events.Publish(ctx, events.NewNotification(n)); err != nil {
		logger.Error("Failed to publish reminder notification", "account_id", account.ID, "error", err)
	}
}

func reminderEmail(account *domain.Account, debt *domain.ClientDebt) events.Email {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", debt.ClientName)
	fmt.Fprintf(&b, "This is a friendly reminder from %s that the following charges are still open:\n\n", account.Name)
	for _, it := range debt.Items {
		label := "Charge"
		if it.SessionID != nil {
			label = "Session"
		}
		fmt.Fprintf(&b, "  %s  %-8s %10s\n", it.When().Format("2006-01-02"), label, it.Outstanding().StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal due: %s\n\nThank you,\n%s", debt.Total.StringFixed(2), account.Name)

	return events.Email{
		AccountID: account.ID,
		ClientID:  debt.ClientID,
		Kind:      domain.CommunicationKindDebtReminder,
		To:        debt.Email,
		ToName:    debt.ClientName,
		Subject:   fmt.Sprintf("Payment reminder from %s", account.Name),
		Text:      b.String(),
	}
}

func reminderLog(msg *events.Email, sendErr error, now time.Time) *domain.CommunicationLog {
	l := &domain.CommunicationLog{
		AccountID: msg.AccountID,
		ClientID:  msg.ClientID,
		Channel:   "email",
		Kind:      msg.Kind,
		Recipient: msg.To,
		Subject:   msg.Subject,
		Status:    domain.CommunicationSent,
		CreatedAt: now,
	}
	if sendErr != nil {
		l.Status = domain.CommunicationFailed
		l.Error = sendErr.Error()
	}
	return l
}
