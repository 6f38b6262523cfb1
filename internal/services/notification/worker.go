package notification

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"catering-system/internal/logger"
	"catering-system/internal/messaging"
	"catering-system/internal/models"
)

// reminderHourUTC is when the daily upcoming-event reminder pass runs
const reminderHourUTC = 9

// reportWeekday is when the weekly report goes out
const reportWeekday = time.Monday

// Worker consumes domain events, retries failed deliveries and runs the
// scheduled reminder and report passes
type Worker struct {
	engine        *Engine
	store         NotificationStore
	consumer      *messaging.Consumer
	logger        *logger.Logger
	retryInterval time.Duration
}

// NewWorker creates the notification worker
func NewWorker(engine *Engine, store NotificationStore, consumer *messaging.Consumer,
	log *logger.Logger, retryInterval time.Duration) *Worker {
	return &Worker{
		engine:        engine,
		store:         store,
		consumer:      consumer,
		logger:        log,
		retryInterval: retryInterval,
	}
}

// Run starts all worker loops and blocks until the context is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("service_started", "Notification worker started", "", map[string]interface{}{
		"retry_interval_seconds": int(w.retryInterval.Seconds()),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.consumer.StartConsuming(gctx, w.handleEvent)
	})
	g.Go(func() error {
		return w.retryLoop(gctx)
	})
	g.Go(func() error {
		return w.scheduleLoop(gctx)
	})

	return g.Wait()
}

// handleEvent processes one event message from the broker
func (w *Worker) handleEvent(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var event models.Event
	if err := messaging.ParseMessage(body, &event); err != nil {
		w.logger.Error("message_parsing_failed", "Failed to parse event message", requestID, err, nil)
		return fmt.Errorf("parse event: %w", err)
	}

	w.logger.Debug("event_received", "Processing domain event", requestID, map[string]interface{}{
		"event_type": string(event.Type),
	})

	return w.engine.HandleEvent(ctx, &event, requestID)
}

// retryLoop re-dispatches due notifications on a fixed interval
func (w *Worker) retryLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			requestID := logger.GenerateRequestID()
			if err := w.engine.RetryDue(ctx, requestID); err != nil {
				w.logger.Error("retry_pass_failed", "Notification retry pass failed", requestID, err, nil)
			}
		}
	}
}

// scheduleLoop fires the daily reminder pass and, on the report weekday, the
// weekly report
func (w *Worker) scheduleLoop(ctx context.Context) error {
	for {
		next := nextDailyRun(time.Now().UTC())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		requestID := logger.GenerateRequestID()

		if err := w.sendReminders(ctx, requestID); err != nil {
			w.logger.Error("reminder_pass_failed", "Upcoming-event reminder pass failed", requestID, err, nil)
		}

		if time.Now().UTC().Weekday() == reportWeekday {
			if err := w.sendWeeklyReport(ctx, requestID); err != nil {
				w.logger.Error("report_pass_failed", "Weekly report pass failed", requestID, err, nil)
			}
		}
	}
}

// nextDailyRun returns the next occurrence of the reminder hour after now
func nextDailyRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), reminderHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// sendReminders notifies clients and coordinators about tomorrow's deliveries
func (w *Worker) sendReminders(ctx context.Context, requestID string) error {
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Truncate(24 * time.Hour)

	orders, err := w.store.ListOrdersDeliveringOn(ctx, tomorrow)
	if err != nil {
		return fmt.Errorf("store.ListOrdersDeliveringOn: %w", err)
	}

	for _, order := range orders {
		event := &models.Event{
			Type:      models.EventUpcomingEventReminder,
			Timestamp: time.Now().UTC(),
			Reminder: &models.ReminderPayload{
				OrderNumber:  order.Number,
				ClientName:   order.ClientName,
				ClientEmail:  order.ClientEmail,
				DeliveryDate: tomorrow.Format("2006-01-02"),
				FinalAmount:  order.FinalAmount,
			},
		}
		if order.DeliveryTime != nil {
			event.Reminder.DeliveryTime = *order.DeliveryTime
		}
		if order.DeliveryAddress != nil {
			event.Reminder.DeliveryAddress = *order.DeliveryAddress
		}

		if err := w.engine.HandleEvent(ctx, event, requestID); err != nil {
			w.logger.Error("reminder_failed", "Failed to handle reminder event", requestID, err,
				map[string]interface{}{"order_number": order.Number})
		}
	}

	w.logger.Info("reminder_pass_completed", "Upcoming-event reminders processed", requestID,
		map[string]interface{}{"orders": len(orders)})

	return nil
}

// sendWeeklyReport aggregates the past week and notifies staff
func (w *Worker) sendWeeklyReport(ctx context.Context, requestID string) error {
	since := time.Now().UTC().AddDate(0, 0, -7)

	report, err := w.store.WeeklyOrderStats(ctx, since)
	if err != nil {
		return fmt.Errorf("store.WeeklyOrderStats: %w", err)
	}

	event := &models.Event{
		Type:      models.EventWeeklyReport,
		Timestamp: time.Now().UTC(),
		Report:    report,
	}

	return w.engine.HandleEvent(ctx, event, requestID)
}
