package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the fulfilment status of an order
type OrderStatus string

const (
	StatusDraft          OrderStatus = "draft"
	StatusSubmitted      OrderStatus = "submitted"
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusPaid           OrderStatus = "paid"
	StatusProcessing     OrderStatus = "processing"
	StatusCompleted      OrderStatus = "completed"
	StatusCancelled      OrderStatus = "cancelled"
)

// PaymentStatus is the closed internal vocabulary for payment state.
// Provider statuses are mapped into it by the gateway adapter.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCharged    PaymentStatus = "charged"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentCredited   PaymentStatus = "credited"
	PaymentUnknown    PaymentStatus = "unknown"
)

// MaxPaymentAttempts caps how many gateway orders may be created for one order
const MaxPaymentAttempts = 3

// ErrAttemptsExhausted is returned when incrementing past the attempt cap
var ErrAttemptsExhausted = errors.New("payment attempts exhausted")

// DeliveryType represents how an order is fulfilled
type DeliveryType string

const (
	DeliveryCourier DeliveryType = "delivery"
	DeliveryPickup  DeliveryType = "pickup"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	StatusDraft:          {},
	StatusSubmitted:      {},
	StatusPendingPayment: {},
	StatusPaid:           {},
	StatusProcessing:     {},
	StatusCompleted:      {},
	StatusCancelled:      {},
}

// ToOrderStatus validates a raw status string against the closed enum
func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := validOrderStatuses[status]; ok {
		return status, nil
	}
	return "", fmt.Errorf("invalid order status: %s", s)
}

// OrderItem represents a menu line item in an order
type OrderItem struct {
	ID       int             `json:"id,omitempty" db:"id"`
	OrderID  int             `json:"order_id,omitempty" db:"order_id"`
	Name     string          `json:"name" db:"name"`
	Quantity int             `json:"quantity" db:"quantity"`
	Price    decimal.Decimal `json:"price" db:"price"`
}

// Order represents a catering order with its payment lifecycle
type Order struct {
	ID               int             `json:"id,omitempty" db:"id"`
	Number           string          `json:"order_number" db:"number"`
	ClientName       string          `json:"client_name" db:"client_name"`
	ClientEmail      string          `json:"client_email" db:"client_email"`
	ClientPhone      *string         `json:"client_phone,omitempty" db:"client_phone"`
	CoordinatorEmail *string         `json:"coordinator_email,omitempty" db:"coordinator_email"`
	ApplicationID    *int            `json:"application_id,omitempty" db:"application_id"`
	DeliveryDate     *time.Time      `json:"delivery_date,omitempty" db:"delivery_date"`
	DeliveryTime     *string         `json:"delivery_time,omitempty" db:"delivery_time"`
	DeliveryType     DeliveryType    `json:"delivery_type" db:"delivery_type"`
	DeliveryAddress  *string         `json:"delivery_address,omitempty" db:"delivery_address"`
	DeliveryCost     decimal.Decimal `json:"delivery_cost" db:"delivery_cost"`

	Items           []OrderItem     `json:"items"`
	ItemsTotal      decimal.Decimal `json:"items_total" db:"items_total"`
	DiscountFixed   decimal.Decimal `json:"discount_fixed" db:"discount_fixed"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	FinalAmount     decimal.Decimal `json:"final_amount" db:"final_amount"`

	Status OrderStatus `json:"status" db:"status"`

	ExternalPaymentID  *string         `json:"external_payment_id,omitempty" db:"external_payment_id"`
	PaymentStatus      PaymentStatus   `json:"payment_status" db:"payment_status"`
	PaymentAttempts    int             `json:"payment_attempts" db:"payment_attempts"`
	PaymentURL         *string         `json:"payment_url,omitempty" db:"payment_url"`
	PaymentCreatedAt   *time.Time      `json:"payment_created_at,omitempty" db:"payment_created_at"`
	PaymentCompletedAt *time.Time      `json:"payment_completed_at,omitempty" db:"payment_completed_at"`
	PaymentDetails     json.RawMessage `json:"payment_details,omitempty" db:"payment_details"`

	CreatedAt time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// IsPendingPayment reports whether the order awaits its first payment attempt
func (o *Order) IsPendingPayment() bool {
	return o.PaymentStatus == PaymentPending && o.Status == StatusSubmitted
}

// IsPaid reports whether the gateway has authorized or charged the payment
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentCharged || o.PaymentStatus == PaymentAuthorized
}

// CanRetryPayment reports whether another payment attempt may be initiated
// after a failure
func (o *Order) CanRetryPayment() bool {
	return o.PaymentAttempts < MaxPaymentAttempts && o.PaymentStatus == PaymentFailed
}

// IncrementPaymentAttempts consumes one payment attempt. The caller must hold
// the per-order row lock.
func (o *Order) IncrementPaymentAttempts() error {
	if o.PaymentAttempts >= MaxPaymentAttempts {
		return fmt.Errorf("order %s has %d attempts: %w", o.Number, o.PaymentAttempts, ErrAttemptsExhausted)
	}
	o.PaymentAttempts++
	return nil
}

// UpdatePaymentStatus is the single entry point for payment-state mutation.
// A charged payment marks the order paid; a failure with all attempts spent
// cancels it. No other status touches the fulfilment status.
func (o *Order) UpdatePaymentStatus(newStatus PaymentStatus, details json.RawMessage) {
	o.PaymentStatus = newStatus
	if details != nil {
		o.PaymentDetails = details
	}

	switch newStatus {
	case PaymentCharged:
		// the completion time survives repeated applications of "charged"
		if o.PaymentCompletedAt == nil {
			now := time.Now().UTC()
			o.PaymentCompletedAt = &now
		}
		o.Status = StatusPaid
	case PaymentFailed:
		if o.PaymentAttempts >= MaxPaymentAttempts {
			o.Status = StatusCancelled
		}
	}
}

// allowed fulfilment transitions for staff edits; any non-terminal state may
// be cancelled explicitly
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusDraft:          {StatusSubmitted, StatusCancelled},
	StatusSubmitted:      {StatusPendingPayment, StatusCancelled},
	StatusPendingPayment: {StatusPaid, StatusCancelled},
	StatusPaid:           {StatusProcessing, StatusCancelled},
	StatusProcessing:     {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether a manual status change is allowed
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CalculateItemsTotal sums quantity * price over the line items
func CalculateItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// CalculateDiscountAmount derives the discount from the fixed and percent parts
func CalculateDiscountAmount(itemsTotal, discountFixed, discountPercent decimal.Decimal) decimal.Decimal {
	percentPart := itemsTotal.Mul(discountPercent).Div(decimal.NewFromInt(100))
	return discountFixed.Add(percentPart).Round(2)
}

// CalculateFinalAmount derives the payable amount: items_total - discount + delivery
func CalculateFinalAmount(itemsTotal, discountAmount, deliveryCost decimal.Decimal) decimal.Decimal {
	return itemsTotal.Sub(discountAmount).Add(deliveryCost).Round(2)
}

// GenerateOrderNumber generates an order number in format ORD_YYYYMMDD_NNN
func GenerateOrderNumber(date time.Time, sequence int) string {
	return fmt.Sprintf("ORD_%s_%03d", date.Format("20060102"), sequence)
}

// CreateOrderRequest represents the request to create a new order
type CreateOrderRequest struct {
	ClientName       string             `json:"client_name"`
	ClientEmail      string             `json:"client_email"`
	ClientPhone      *string            `json:"client_phone,omitempty"`
	CoordinatorEmail *string            `json:"coordinator_email,omitempty"`
	ApplicationID    *int               `json:"application_id,omitempty"`
	DeliveryDate     string             `json:"delivery_date,omitempty"`
	DeliveryTime     *string            `json:"delivery_time,omitempty"`
	DeliveryType     string             `json:"delivery_type"`
	DeliveryAddress  *string            `json:"delivery_address,omitempty"`
	DeliveryCost     decimal.Decimal    `json:"delivery_cost"`
	DiscountFixed    decimal.Decimal    `json:"discount_fixed"`
	DiscountPercent  decimal.Decimal    `json:"discount_percent"`
	Submit           bool               `json:"submit"`
	Items            []OrderItemRequest `json:"items"`
}

// OrderItemRequest represents a line item in an order creation request
type OrderItemRequest struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderNumber string          `json:"order_number"`
	Status      OrderStatus     `json:"status"`
	FinalAmount decimal.Decimal `json:"final_amount"`
}

// Validate validates the create order request
func (req *CreateOrderRequest) Validate() error {
	if err := validateClientName(req.ClientName); err != nil {
		return err
	}
	if err := validateEmail(req.ClientEmail); err != nil {
		return err
	}

	deliveryType, err := validateDeliveryType(req.DeliveryType)
	if err != nil {
		return err
	}
	if deliveryType == DeliveryCourier && (req.DeliveryAddress == nil || *req.DeliveryAddress == "") {
		return fmt.Errorf("delivery_address is required for delivery orders")
	}

	if req.DeliveryDate != "" {
		if _, err := time.Parse("2006-01-02", req.DeliveryDate); err != nil {
			return fmt.Errorf("delivery_date must be in YYYY-MM-DD format")
		}
	}

	if req.DeliveryCost.IsNegative() {
		return fmt.Errorf("delivery_cost must not be negative")
	}
	if req.DiscountFixed.IsNegative() {
		return fmt.Errorf("discount_fixed must not be negative")
	}
	if req.DiscountPercent.IsNegative() || req.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("discount_percent must be between 0 and 100")
	}

	if err := validateItems(req.Items); err != nil {
		return err
	}

	// The derived payable amount must never go negative
	itemsTotal := CalculateItemsTotal(req.BuildItems())
	discount := CalculateDiscountAmount(itemsTotal, req.DiscountFixed, req.DiscountPercent)
	if CalculateFinalAmount(itemsTotal, discount, req.DeliveryCost).IsNegative() {
		return fmt.Errorf("final_amount must not be negative")
	}

	return nil
}

// BuildItems converts request items into order items
func (req *CreateOrderRequest) BuildItems() []OrderItem {
	items := make([]OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, OrderItem{
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return items
}

func validateClientName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("client_name is required")
	}
	if len(name) > 100 {
		return fmt.Errorf("client_name must not exceed 100 characters")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("client_email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("client_email is not a valid address")
	}
	return nil
}

func validateDeliveryType(deliveryType string) (DeliveryType, error) {
	switch DeliveryType(deliveryType) {
	case DeliveryCourier, DeliveryPickup:
		return DeliveryType(deliveryType), nil
	default:
		return "", fmt.Errorf("delivery_type must be one of: delivery, pickup")
	}
}

func validateItems(items []OrderItemRequest) error {
	if len(items) == 0 {
		return fmt.Errorf("items array cannot be empty")
	}
	if len(items) > 50 {
		return fmt.Errorf("items array cannot contain more than 50 items")
	}

	for i, item := range items {
		prefix := fmt.Sprintf("items[%d]", i)
		if len(item.Name) == 0 {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if len(item.Name) > 100 {
			return fmt.Errorf("%s.name must not exceed 100 characters", prefix)
		}
		if item.Quantity < 1 || item.Quantity > 1000 {
			return fmt.Errorf("%s.quantity must be between 1 and 1000", prefix)
		}
		if item.Price.IsNegative() {
			return fmt.Errorf("%s.price must not be negative", prefix)
		}
	}

	return nil
}
