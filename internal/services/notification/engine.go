// Package notification turns domain events into persisted, retried
// deliveries to clients and staff.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"catering-system/internal/config"
	"catering-system/internal/logger"
	"catering-system/internal/models"
)

// Engine fans events out into one notification row per recipient and
// dispatches them
type Engine struct {
	store     NotificationStore
	transport Transport
	logger    *logger.Logger
	cfg       config.NotificationsConfig
}

// NewEngine creates the notification engine
func NewEngine(store NotificationStore, transport Transport, log *logger.Logger, cfg config.NotificationsConfig) *Engine {
	return &Engine{
		store:     store,
		transport: transport,
		logger:    log,
		cfg:       cfg,
	}
}

// HandleEvent persists and dispatches one notification per recipient. A
// failed delivery is recorded for retry, never returned: the event is
// consumed once the rows exist.
func (e *Engine) HandleEvent(ctx context.Context, event *models.Event, requestID string) error {
	recipients := resolveRecipients(event, e.cfg)
	if len(recipients) == 0 {
		e.logger.Debug("event_skipped", "No recipients for event", requestID, map[string]interface{}{
			"event_type": string(event.Type),
		})
		return nil
	}

	metadata, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}

	subject, body := composeMessage(event)

	for _, rcpt := range recipients {
		n := &models.Notification{
			Type:      string(event.Type),
			Recipient: rcpt.address,
			Role:      rcpt.role,
			Subject:   subject,
			Body:      body,
			Metadata:  metadata,
			Status:    models.NotificationPending,
		}

		if err := e.store.Insert(ctx, n); err != nil {
			return fmt.Errorf("store.Insert: %w", err)
		}

		e.Dispatch(ctx, n, requestID)
	}

	return nil
}

// Dispatch attempts one delivery and records the outcome. After max_retries
// failed sends the notification bounces and is never retried again.
func (e *Engine) Dispatch(ctx context.Context, n *models.Notification, requestID string) {
	sendErr := e.transport.Send(ctx, n)
	if sendErr == nil {
		n.MarkSent(time.Now().UTC())
		if err := e.store.MarkSent(ctx, n); err != nil {
			e.logger.Error("notification_update_failed", "Failed to record sent notification", requestID, err,
				map[string]interface{}{"notification_id": n.ID})
		}
		e.logger.Info("notification_sent", "Notification delivered", requestID, map[string]interface{}{
			"notification_id": n.ID,
			"recipient":       n.Recipient,
			"type":            n.Type,
		})
		return
	}

	if n.RetryCount >= e.cfg.MaxRetries {
		n.MarkBounced(sendErr)
		if err := e.store.MarkBounced(ctx, n); err != nil {
			e.logger.Error("notification_update_failed", "Failed to record bounced notification", requestID, err,
				map[string]interface{}{"notification_id": n.ID})
		}
		e.logger.Error("notification_bounced", "Notification gave up after max retries", requestID, sendErr,
			map[string]interface{}{
				"notification_id": n.ID,
				"recipient":       n.Recipient,
				"retry_count":     n.RetryCount,
			})
		return
	}

	n.MarkFailed(sendErr, time.Now().UTC())
	if err := e.store.MarkFailed(ctx, n); err != nil {
		e.logger.Error("notification_update_failed", "Failed to record failed notification", requestID, err,
			map[string]interface{}{"notification_id": n.ID})
	}
	e.logger.Error("notification_failed", "Notification delivery failed, retry scheduled", requestID, sendErr,
		map[string]interface{}{
			"notification_id": n.ID,
			"recipient":       n.Recipient,
			"retry_count":     n.RetryCount,
			"next_retry_at":   n.NextRetryAt.Format(time.RFC3339),
		})
}

// maxRetryBatch bounds how many due notifications one retry pass picks up
const maxRetryBatch = 200

// RetryDue re-dispatches every failed notification whose retry time passed.
// The store claims the rows it hands out, so a sweep running on another
// worker cannot resend the same notification.
func (e *Engine) RetryDue(ctx context.Context, requestID string) error {
	due, err := e.store.ClaimDue(ctx, maxRetryBatch)
	if err != nil {
		return fmt.Errorf("store.ClaimDue: %w", err)
	}

	for _, n := range due {
		e.Dispatch(ctx, n, requestID)
	}

	if len(due) > 0 {
		e.logger.Info("retry_pass_completed", "Retried due notifications", requestID, map[string]interface{}{
			"count": len(due),
		})
	}

	return nil
}

// composeMessage renders the subject and plain-text body for an event
func composeMessage(event *models.Event) (string, string) {
	switch event.Type {
	case models.EventOrderCreated:
		o := event.Order
		return fmt.Sprintf("Order %s received", o.OrderNumber),
			fmt.Sprintf("Hello %s,\n\nYour catering order %s has been received.\nTotal amount: %s.\n\nThank you!",
				o.ClientName, o.OrderNumber, o.FinalAmount.StringFixed(2))

	case models.EventOrderStatusChanged:
		o := event.Order
		return fmt.Sprintf("Order %s is now %s", o.OrderNumber, o.NewStatus),
			fmt.Sprintf("Hello %s,\n\nYour catering order %s changed status: %s -> %s.",
				o.ClientName, o.OrderNumber, o.OldStatus, o.NewStatus)

	case models.EventPaymentFailed:
		o := event.Order
		body := fmt.Sprintf("Hello %s,\n\nPayment for order %s did not go through.", o.ClientName, o.OrderNumber)
		if o.FailureReason != "" {
			body += fmt.Sprintf("\nReason: %s.", o.FailureReason)
		}
		return fmt.Sprintf("Payment failed for order %s", o.OrderNumber), body

	case models.EventApplicationCreated:
		a := event.Application
		return fmt.Sprintf("New catering application from %s", a.ClientName),
			fmt.Sprintf("A new application arrived.\n\nClient: %s <%s>\nEvent date: %s\nGuests: %d",
				a.ClientName, a.ClientEmail, a.EventDate, a.Guests)

	case models.EventApplicationStatusChanged:
		a := event.Application
		return fmt.Sprintf("Application #%d is now %s", a.ApplicationID, a.NewStatus),
			fmt.Sprintf("Application #%d from %s changed status: %s -> %s.",
				a.ApplicationID, a.ClientName, a.OldStatus, a.NewStatus)

	case models.EventUpcomingEventReminder:
		rm := event.Reminder
		body := fmt.Sprintf("Hello %s,\n\nThis is a reminder: catering order %s is delivered tomorrow, %s",
			rm.ClientName, rm.OrderNumber, rm.DeliveryDate)
		if rm.DeliveryTime != "" {
			body += " at " + rm.DeliveryTime
		}
		body += "."
		if rm.DeliveryAddress != "" {
			body += "\nAddress: " + rm.DeliveryAddress + "."
		}
		return fmt.Sprintf("Reminder: order %s delivers tomorrow", rm.OrderNumber), body

	case models.EventWeeklyReport:
		r := event.Report
		var b strings.Builder
		fmt.Fprintf(&b, "Weekly order report (%s - %s)\n\n",
			r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
		fmt.Fprintf(&b, "Total orders: %d\n", r.TotalOrders)
		fmt.Fprintf(&b, "Completed: %d\n", r.CompletedOrders)
		fmt.Fprintf(&b, "Cancelled: %d\n", r.CancelledOrders)
		fmt.Fprintf(&b, "Revenue (charged): %s\n", r.Revenue.StringFixed(2))
		return "Weekly catering report", b.String()

	default:
		return string(event.Type), fmt.Sprintf("Event %s occurred at %s.",
			event.Type, event.Timestamp.Format(time.RFC3339))
	}
}
