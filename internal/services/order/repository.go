package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"catering-system/internal/database"
	"catering-system/internal/models"
)

var (
	// ErrOrderNotFound is returned when the order number resolves to nothing
	ErrOrderNotFound = errors.New("order not found")

	// ErrApplicationNotFound is returned when the application id resolves to nothing
	ErrApplicationNotFound = errors.New("application not found")
)

// Store is the persistence boundary of the order service
type Store interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int, status models.OrderStatus) error

	CreateApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, id int) (*models.Application, error)
	UpdateApplicationStatus(ctx context.Context, id int, status models.ApplicationStatus) error

	Ping(ctx context.Context) error
}

// Repository implements Store on PostgreSQL
type Repository struct {
	db *database.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates an order repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CreateOrder assigns the next daily order number and inserts the order with
// its line items in one transaction. The number sequence resets each day.
func (r *Repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		today := time.Now().UTC()
		prefix := fmt.Sprintf("ORD_%s_%%", today.Format("20060102"))

		var sequence int
		if err := tx.QueryRow(ctx, database.GetNextOrderNumberSQL, prefix).Scan(&sequence); err != nil {
			return fmt.Errorf("next order number: %w", err)
		}
		order.Number = models.GenerateOrderNumber(today, sequence)

		err := tx.QueryRow(ctx, database.InsertOrderSQL,
			order.Number, order.ClientName, order.ClientEmail, order.ClientPhone, order.CoordinatorEmail,
			order.ApplicationID, order.DeliveryDate, order.DeliveryTime, order.DeliveryType,
			order.DeliveryAddress, order.DeliveryCost,
			order.ItemsTotal, order.DiscountFixed, order.DiscountPercent, order.DiscountAmount,
			order.FinalAmount, order.Status,
		).Scan(&order.ID, &order.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			if _, err := tx.Exec(ctx, database.InsertOrderItemSQL,
				order.ID, item.Name, item.Quantity, item.Price); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		return nil
	})
}

// GetOrderByNumber fetches one order with its line items
func (r *Repository) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	row := r.db.QueryRow(ctx, database.GetOrderByNumberSQL, number)

	var o models.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.ClientName, &o.ClientEmail, &o.ClientPhone, &o.CoordinatorEmail,
		&o.ApplicationID, &o.DeliveryDate, &o.DeliveryTime, &o.DeliveryType, &o.DeliveryAddress, &o.DeliveryCost,
		&o.ItemsTotal, &o.DiscountFixed, &o.DiscountPercent, &o.DiscountAmount, &o.FinalAmount, &o.Status,
		&o.ExternalPaymentID, &o.PaymentStatus, &o.PaymentAttempts, &o.PaymentURL,
		&o.PaymentCreatedAt, &o.PaymentCompletedAt, &o.PaymentDetails, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", number, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	rows, err := r.db.Query(ctx, database.GetOrderItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.Name, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return &o, nil
}

// UpdateOrderStatus persists a fulfilment status change
func (r *Repository) UpdateOrderStatus(ctx context.Context, id int, status models.OrderStatus) error {
	if err := r.db.Exec(ctx, database.UpdateOrderStatusSQL, status, id); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// CreateApplication inserts a new pre-order lead
func (r *Repository) CreateApplication(ctx context.Context, app *models.Application) error {
	err := r.db.QueryRow(ctx, database.InsertApplicationSQL,
		app.ClientName, app.ClientEmail, app.ClientPhone, app.EventDate, app.Guests, app.Comment,
	).Scan(&app.ID, &app.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	app.Status = models.ApplicationNew
	return nil
}

// GetApplication fetches one application
func (r *Repository) GetApplication(ctx context.Context, id int) (*models.Application, error) {
	row := r.db.QueryRow(ctx, database.GetApplicationSQL, id)

	var app models.Application
	err := row.Scan(&app.ID, &app.ClientName, &app.ClientEmail, &app.ClientPhone,
		&app.EventDate, &app.Guests, &app.Comment, &app.Status, &app.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("application %d: %w", id, ErrApplicationNotFound)
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}

	return &app, nil
}

// UpdateApplicationStatus persists an application status change
func (r *Repository) UpdateApplicationStatus(ctx context.Context, id int, status models.ApplicationStatus) error {
	if err := r.db.Exec(ctx, database.UpdateApplicationStatusSQL, status, id); err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	return nil
}

// Ping reports database liveness for health checks
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
