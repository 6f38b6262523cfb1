package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"catering-system/internal/database"
	"catering-system/internal/models"
)

// NotificationStore is the persistence boundary of the notification engine
type NotificationStore interface {
	Insert(ctx context.Context, n *models.Notification) error
	MarkSent(ctx context.Context, n *models.Notification) error
	MarkFailed(ctx context.Context, n *models.Notification) error
	MarkBounced(ctx context.Context, n *models.Notification) error
	ClaimDue(ctx context.Context, limit int) ([]*models.Notification, error)

	ListOrdersDeliveringOn(ctx context.Context, date time.Time) ([]*models.Order, error)
	WeeklyOrderStats(ctx context.Context, since time.Time) (*models.WeeklyReportPayload, error)
}

// Repository implements NotificationStore on PostgreSQL
type Repository struct {
	db *database.DB
}

var _ NotificationStore = (*Repository)(nil)

// NewRepository creates a notification repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Insert persists a new notification row
func (r *Repository) Insert(ctx context.Context, n *models.Notification) error {
	err := r.db.QueryRow(ctx, database.InsertNotificationSQL,
		n.Type, n.Recipient, n.Role, n.Subject, n.Body, n.Metadata, n.Status,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// MarkSent persists a successful delivery
func (r *Repository) MarkSent(ctx context.Context, n *models.Notification) error {
	if err := r.db.Exec(ctx, database.MarkNotificationSentSQL, n.SentAt, n.ID); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed persists a failed delivery together with its retry schedule
func (r *Repository) MarkFailed(ctx context.Context, n *models.Notification) error {
	if err := r.db.Exec(ctx, database.MarkNotificationFailedSQL,
		n.ErrorMessage, n.RetryCount, n.NextRetryAt, n.ID); err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}

// MarkBounced persists the terminal bounced state
func (r *Repository) MarkBounced(ctx context.Context, n *models.Notification) error {
	if err := r.db.Exec(ctx, database.MarkNotificationBouncedSQL, n.ErrorMessage, n.ID); err != nil {
		return fmt.Errorf("mark notification bounced: %w", err)
	}
	return nil
}

// ClaimDue returns failed notifications whose retry time has passed. The
// query clears next_retry_at on the claimed rows, so concurrent workers
// never pick up the same notification. Redispatching reschedules or
// settles every claimed row.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]*models.Notification, error) {
	rows, err := r.db.Query(ctx, database.ClaimDueNotificationsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due notifications: %w", err)
	}
	defer rows.Close()

	var due []*models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(&n.ID, &n.Type, &n.Recipient, &n.Role, &n.Subject, &n.Body, &n.Metadata,
			&n.Status, &n.SentAt, &n.ErrorMessage, &n.RetryCount, &n.NextRetryAt, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		due = append(due, &n)
	}

	return due, rows.Err()
}

// ListOrdersDeliveringOn returns paid or processing orders delivering on the
// given date, for the upcoming-event reminder
func (r *Repository) ListOrdersDeliveringOn(ctx context.Context, date time.Time) ([]*models.Order, error) {
	rows, err := r.db.Query(ctx, database.ListOrdersDeliveringOnSQL, date)
	if err != nil {
		return nil, fmt.Errorf("query delivering orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		var o models.Order
		err := rows.Scan(&o.ID, &o.Number, &o.ClientName, &o.ClientEmail, &o.CoordinatorEmail,
			&o.DeliveryDate, &o.DeliveryTime, &o.DeliveryAddress, &o.FinalAmount)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, &o)
	}

	return orders, rows.Err()
}

// WeeklyOrderStats aggregates order counts and charged revenue since the
// given time
func (r *Repository) WeeklyOrderStats(ctx context.Context, since time.Time) (*models.WeeklyReportPayload, error) {
	row := r.db.QueryRow(ctx, database.WeeklyOrderStatsSQL, since)

	report := models.WeeklyReportPayload{From: since, To: time.Now().UTC(), Revenue: decimal.Zero}
	if err := row.Scan(&report.TotalOrders, &report.CompletedOrders, &report.CancelledOrders, &report.Revenue); err != nil {
		return nil, fmt.Errorf("scan weekly stats: %w", err)
	}

	return &report, nil
}
