package service

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"
)

// notificationTemplates maps event kinds onto user-facing copy. Unknown kinds
// fall back to a generic template rather than being dropped.
var notificationTemplates = map[string]struct {
	title   string
	message string
}{
	"RENTAL_STARTED":    {"Rental started", "Your power bank is ready. Return it by the due time to avoid late fees."},
	"RENTAL_EXTENDED":   {"Rental extended", "Your rental due time has been pushed back."},
	"RENTAL_COMPLETED":  {"Rental completed", "Thanks for returning your power bank."},
	"RENTAL_CANCELLED":  {"Rental cancelled", "Your rental was cancelled and any charge refunded."},
	"DUES_OUTSTANDING":  {"Payment due", "Your return left an unpaid balance. Settle it to keep renting."},
	"DUES_SETTLED":      {"Dues settled", "Your outstanding balance is cleared. Your account is active again."},
	"OVERDUE_REMINDER":  {"Power bank overdue", "Your power bank is past its due time. Late fees are accruing."},
	"PAYMENT_COMPLETED": {"Payment received", "Your payment was processed and credited to your wallet."},
}

type notifier struct {
	store     repository.Store
	apiKey    string
	fromEmail string
	fromName  string
}

// NewNotifier builds the default Notifier: an in-app notification row plus a
// best-effort SendGrid email. Pass an empty API key to disable email.
func NewNotifier(store repository.Store, apiKey, fromEmail, fromName string) Notifier {
	return &notifier{
		store:     store,
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// Notify never returns an error. A rental or payment outcome is already
// committed by the time this runs; delivery failures are logged and dropped.
func (n *notifier) Notify(ctx context.Context, userID int64, eventKind string, payload map[string]string) {
	tpl, ok := notificationTemplates[eventKind]
	if !ok {
		tpl.title = "Account update"
		tpl.message = "There is an update on your account."
	}

	note := &domain.Notification{
		UserID:     userID,
		Kind:       eventKind,
		Title:      tpl.title,
		Message:    tpl.message,
		Attributes: payload,
	}
	if err := n.store.Notifications().Create(ctx, note); err != nil {
		logger.Error("Failed to record notification",
			"user_id", userID, "kind", eventKind, "error", err)
	}

	if n.apiKey == "" {
		return
	}
	user, err := n.store.Users().GetByID(ctx, userID)
	if err != nil {
		logger.Error("Failed to load user for email notification",
			"user_id", userID, "kind", eventKind, "error", err)
		return
	}
	if err := n.sendEmail(user, tpl.title, tpl.message); err != nil {
		logger.Error("Failed to send email notification",
			"user_id", userID, "kind", eventKind, "error", err)
	}
}

func (n *notifier) sendEmail(user *domain.User, subject, plainText string) error {
	from := mail.NewEmail(n.fromName, n.fromEmail)
	recipient := mail.NewEmail(user.Name, user.Email)
	message := mail.NewSingleEmail(from, subject, recipient, plainText, "")

	client := sendgrid.NewSendClient(n.apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
