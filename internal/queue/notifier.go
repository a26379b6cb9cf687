package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eventflow/eventflow-api/internal/notify"
)

// Notifier turns domain events into an audit line in booking.log and an
// email to the user.
type Notifier struct {
	logDir string
	appURL string
	mailer notify.Mailer

	mu sync.Mutex // serializes appends to booking.log
}

func NewNotifier(logDir, appURL string, m notify.Mailer) *Notifier {
	if m == nil {
		panic("nil mailer")
	}
	if logDir == "" {
		logDir = "logs"
	}
	return &Notifier{logDir: logDir, appURL: strings.TrimRight(appURL, "/"), mailer: m}
}

// Handle implements Handler.
func (n *Notifier) Handle(ctx context.Context, key string, body []byte) error {
	switch {
	case strings.HasPrefix(key, "booking."):
		var ev BookingEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", key, err)
		}
		return n.booking(ctx, key, ev)
	case key == KeyPasswordResetRequest:
		var ev PasswordResetRequested
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", key, err)
		}
		return n.passwordReset(ctx, ev)
	case key == KeyAccountRegistered:
		var ev AccountRegistered
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", key, err)
		}
		return n.mailer.Send(ctx, notify.Message{
			To:      ev.Email,
			Subject: "Welcome to EventFlow",
			Body:    fmt.Sprintf("Hi %s,\n\nYour EventFlow account is ready.", ev.Name),
		})
	}
	log.Debug().Str("routing_key", key).Msg("notifier: ignoring unknown routing key")
	return nil
}

func (n *Notifier) booking(ctx context.Context, key string, ev BookingEvent) error {
	if err := n.appendBookingLog(key, ev); err != nil {
		return err
	}
	if ev.UserEmail == "" {
		return nil
	}
	msg := notify.Message{To: ev.UserEmail}
	switch key {
	case KeyBookingCreated:
		msg.Subject = "Booking received: " + ev.BookingReference
		msg.Body = fmt.Sprintf("Your booking %s for %q (%d ticket(s), total %s) is pending payment.",
			ev.BookingReference, ev.EventTitle, ev.Quantity, ev.TotalAmount.StringFixed(2))
	case KeyBookingConfirmed:
		msg.Subject = "Booking confirmed: " + ev.BookingReference
		msg.Body = fmt.Sprintf("Your booking %s for %q is confirmed. See you there!",
			ev.BookingReference, ev.EventTitle)
	case KeyBookingCancelled:
		msg.Subject = "Booking cancelled: " + ev.BookingReference
		msg.Body = fmt.Sprintf("Your booking %s for %q was cancelled.", ev.BookingReference, ev.EventTitle)
		if ev.Refunded {
			msg.Body += fmt.Sprintf(" A refund of %s has been issued.", ev.TotalAmount.StringFixed(2))
		}
	default:
		return nil
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		// the audit line is written; a failed email is not worth a redelivery
		log.Warn().Err(err).Str("booking_reference", ev.BookingReference).Msg("notifier: booking email failed")
	}
	return nil
}

func (n *Notifier) passwordReset(ctx context.Context, ev PasswordResetRequested) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", n.appURL, url.QueryEscape(ev.Token))
	return n.mailer.Send(ctx, notify.Message{
		To:      ev.Email,
		Subject: "Reset your EventFlow password",
		Body: fmt.Sprintf("Hi %s,\n\nUse the link below to choose a new password. It expires at %s.\n\n%s\n\n"+
			"If you did not ask for this, ignore this email.", ev.Name, ev.ExpiresAt.UTC().Format(time.RFC1123), link),
	})
}

func (n *Notifier) appendBookingLog(key string, ev BookingEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := os.MkdirAll(n.logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(n.logDir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s | booking_id=%d | ref=%s | status=%s | user_id=%d | event_id=%d | event=%q | ticket_id=%d | qty=%d | total=%s\n",
		ev.OccurredAt.UTC().Format(time.RFC3339), key, ev.BookingID, ev.BookingReference, ev.Status,
		ev.UserID, ev.EventID, ev.EventTitle, ev.TicketID, ev.Quantity, ev.TotalAmount.StringFixed(2))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
