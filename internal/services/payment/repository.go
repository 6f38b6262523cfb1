package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"catering-system/internal/database"
	"catering-system/internal/models"
)

// ErrNotFound is returned when the order does not exist
var ErrNotFound = errors.New("order not found")

// OrderStore is the persistence boundary of the reconciliation service
type OrderStore interface {
	GetOrderByID(ctx context.Context, id int) (*models.Order, error)
	FindByExternalPaymentID(ctx context.Context, externalID string) (*models.Order, error)
	ListAwaitingReconciliation(ctx context.Context, limit int) ([]int, error)

	// WithOrderLock loads the order under a row-level lock, runs fn against
	// it, persists the mutated payment fields and status, and commits. fn
	// returning an error rolls everything back.
	WithOrderLock(ctx context.Context, id int, fn func(o *models.Order) error) (*models.Order, error)
}

// Repository implements OrderStore on PostgreSQL
type Repository struct {
	db *database.DB
}

var _ OrderStore = (*Repository)(nil)

// NewRepository creates a payment repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// GetOrderByID fetches one order without locking
func (r *Repository) GetOrderByID(ctx context.Context, id int) (*models.Order, error) {
	row := r.db.QueryRow(ctx, database.GetOrderByIDSQL, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return order, nil
}

// FindByExternalPaymentID resolves a provider callback to the local order
func (r *Repository) FindByExternalPaymentID(ctx context.Context, externalID string) (*models.Order, error) {
	row := r.db.QueryRow(ctx, database.GetOrderByExternalPaymentSQL, externalID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("external payment %s: %w", externalID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return order, nil
}

// ListAwaitingReconciliation returns ids of orders with a pending payment and
// a provider-side order to poll
func (r *Repository) ListAwaitingReconciliation(ctx context.Context, limit int) ([]int, error) {
	rows, err := r.db.Query(ctx, database.ListOrdersAwaitingReconciliationSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query awaiting reconciliation: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// WithOrderLock serializes all payment-field mutations per order
func (r *Repository) WithOrderLock(ctx context.Context, id int, fn func(o *models.Order) error) (*models.Order, error) {
	var order *models.Order

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, database.GetOrderForUpdateSQL, id)

		var scanErr error
		order, scanErr = scanOrder(row)
		if scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return fmt.Errorf("order %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("scan order: %w", scanErr)
		}

		if err := fn(order); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, database.UpdateOrderPaymentSQL,
			order.Status, order.PaymentStatus, order.PaymentAttempts,
			order.ExternalPaymentID, order.PaymentURL, order.PaymentCreatedAt,
			order.PaymentCompletedAt, order.PaymentDetails, order.ID)
		if err != nil {
			return fmt.Errorf("update order payment: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.ClientName, &o.ClientEmail, &o.ClientPhone, &o.CoordinatorEmail,
		&o.ApplicationID, &o.DeliveryDate, &o.DeliveryTime, &o.DeliveryType, &o.DeliveryAddress, &o.DeliveryCost,
		&o.ItemsTotal, &o.DiscountFixed, &o.DiscountPercent, &o.DiscountAmount, &o.FinalAmount, &o.Status,
		&o.ExternalPaymentID, &o.PaymentStatus, &o.PaymentAttempts, &o.PaymentURL,
		&o.PaymentCreatedAt, &o.PaymentCompletedAt, &o.PaymentDetails, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
