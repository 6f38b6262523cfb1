package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catering-system/internal/gateway"
	"catering-system/internal/logger"
	"catering-system/internal/models"
	"catering-system/internal/services/payment"
)

// ErrInvalidTransition is returned when a manual status edit is not allowed
// from the current state
var ErrInvalidTransition = errors.New("status transition not allowed")

// Notifier publishes domain events
type Notifier interface {
	PublishEvent(ctx context.Context, event *models.Event) error
}

// PaymentCoordinator is the payment subsystem as seen by the order API
type PaymentCoordinator interface {
	InitiatePayment(ctx context.Context, orderID int, requestID string) (payment.InitiateResult, error)
	Reconcile(ctx context.Context, orderID int, requestID string) (payment.ReconcileResult, error)
	ReconcileByExternalID(ctx context.Context, externalID, requestID string) (payment.ReconcileResult, error)
}

// GatewayPinger exposes the provider liveness check for health reporting
type GatewayPinger interface {
	Ping(ctx context.Context) gateway.PingResult
}

// HealthStatus reports the reachability of the service dependencies
type HealthStatus struct {
	Database bool
	Gateway  bool
}

// Service implements the order and application operations behind the HTTP API
type Service struct {
	store    Store
	payments PaymentCoordinator
	gateway  GatewayPinger
	notifier Notifier
	logger   *logger.Logger
}

// NewService creates the order service
func NewService(store Store, payments PaymentCoordinator, gw GatewayPinger, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		payments: payments,
		gateway:  gw,
		notifier: notifier,
		logger:   log,
	}
}

// CreateApplication records a new pre-order lead
func (s *Service) CreateApplication(ctx context.Context, req *models.CreateApplicationRequest, requestID string) (*models.Application, error) {
	app := &models.Application{
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		Guests:      req.Guests,
		Comment:     req.Comment,
	}
	if req.EventDate != "" {
		eventDate, err := time.Parse("2006-01-02", req.EventDate)
		if err != nil {
			return nil, fmt.Errorf("parse event_date: %w", err)
		}
		app.EventDate = &eventDate
	}

	if err := s.store.CreateApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("store.CreateApplication: %w", err)
	}

	s.logger.Info("application_created", "Application recorded", requestID, map[string]interface{}{
		"application_id": app.ID,
		"client_name":    app.ClientName,
	})

	s.publish(ctx, models.NewApplicationEvent(models.EventApplicationCreated, app, ""), requestID)

	return app, nil
}

// UpdateApplicationStatus applies a staff edit to an application
func (s *Service) UpdateApplicationStatus(ctx context.Context, id int, status models.ApplicationStatus, requestID string) (*models.Application, error) {
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("store.GetApplication: %w", err)
	}

	oldStatus := app.Status
	if oldStatus == status {
		return app, nil
	}

	if err := s.store.UpdateApplicationStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("store.UpdateApplicationStatus: %w", err)
	}
	app.Status = status

	s.publish(ctx, models.NewApplicationEvent(models.EventApplicationStatusChanged, app, oldStatus), requestID)

	return app, nil
}

// CreateOrder builds an order from the request, derives its amounts and
// persists it. An order referencing an application converts that application.
func (s *Service) CreateOrder(ctx context.Context, req *models.CreateOrderRequest, requestID string) (*models.CreateOrderResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var app *models.Application
	if req.ApplicationID != nil {
		var err error
		app, err = s.store.GetApplication(ctx, *req.ApplicationID)
		if err != nil {
			return nil, fmt.Errorf("store.GetApplication: %w", err)
		}
	}

	items := req.BuildItems()
	itemsTotal := models.CalculateItemsTotal(items)
	discount := models.CalculateDiscountAmount(itemsTotal, req.DiscountFixed, req.DiscountPercent)

	order := &models.Order{
		ClientName:       req.ClientName,
		ClientEmail:      req.ClientEmail,
		ClientPhone:      req.ClientPhone,
		CoordinatorEmail: req.CoordinatorEmail,
		ApplicationID:    req.ApplicationID,
		DeliveryTime:     req.DeliveryTime,
		DeliveryType:     models.DeliveryType(req.DeliveryType),
		DeliveryAddress:  req.DeliveryAddress,
		DeliveryCost:     req.DeliveryCost,
		Items:            items,
		ItemsTotal:       itemsTotal,
		DiscountFixed:    req.DiscountFixed,
		DiscountPercent:  req.DiscountPercent,
		DiscountAmount:   discount,
		FinalAmount:      models.CalculateFinalAmount(itemsTotal, discount, req.DeliveryCost),
		Status:           models.StatusDraft,
		PaymentStatus:    models.PaymentPending,
	}
	if req.Submit {
		order.Status = models.StatusSubmitted
	}
	if req.DeliveryDate != "" {
		deliveryDate, err := time.Parse("2006-01-02", req.DeliveryDate)
		if err != nil {
			return nil, fmt.Errorf("parse delivery_date: %w", err)
		}
		order.DeliveryDate = &deliveryDate
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("store.CreateOrder: %w", err)
	}

	s.logger.Info("order_created", "Order created", requestID, map[string]interface{}{
		"order_number": order.Number,
		"status":       string(order.Status),
		"final_amount": order.FinalAmount.String(),
	})

	if app != nil && app.Status != models.ApplicationConverted {
		oldStatus := app.Status
		if err := s.store.UpdateApplicationStatus(ctx, app.ID, models.ApplicationConverted); err != nil {
			s.logger.Error("application_convert_failed", "Failed to mark application converted", requestID, err,
				map[string]interface{}{"application_id": app.ID})
		} else {
			app.Status = models.ApplicationConverted
			s.publish(ctx, models.NewApplicationEvent(models.EventApplicationStatusChanged, app, oldStatus), requestID)
		}
	}

	s.publish(ctx, models.NewOrderEvent(models.EventOrderCreated, order, "", ""), requestID)

	return &models.CreateOrderResponse{
		OrderNumber: order.Number,
		Status:      order.Status,
		FinalAmount: order.FinalAmount,
	}, nil
}

// GetOrder fetches one order with its line items
func (s *Service) GetOrder(ctx context.Context, number string) (*models.Order, error) {
	return s.store.GetOrderByNumber(ctx, number)
}

// SubmitOrder moves a draft order into the submitted state
func (s *Service) SubmitOrder(ctx context.Context, number, requestID string) (*models.Order, error) {
	return s.changeStatus(ctx, number, models.StatusSubmitted, requestID)
}

// UpdateOrderStatus applies a staff edit to the fulfilment status
func (s *Service) UpdateOrderStatus(ctx context.Context, number string, status models.OrderStatus, requestID string) (*models.Order, error) {
	return s.changeStatus(ctx, number, status, requestID)
}

func (s *Service) changeStatus(ctx context.Context, number string, next models.OrderStatus, requestID string) (*models.Order, error) {
	order, err := s.store.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("store.GetOrderByNumber: %w", err)
	}

	if !order.CanTransitionTo(next) {
		return nil, fmt.Errorf("order %s %s -> %s: %w", number, order.Status, next, ErrInvalidTransition)
	}

	oldStatus := order.Status
	if err := s.store.UpdateOrderStatus(ctx, order.ID, next); err != nil {
		return nil, fmt.Errorf("store.UpdateOrderStatus: %w", err)
	}
	order.Status = next

	s.logger.Info("order_status_changed", "Order status updated", requestID, map[string]interface{}{
		"order_number": order.Number,
		"old_status":   string(oldStatus),
		"new_status":   string(next),
	})

	s.publish(ctx, models.NewOrderEvent(models.EventOrderStatusChanged, order, oldStatus, ""), requestID)

	return order, nil
}

// InitiatePayment opens a gateway payment for the order
func (s *Service) InitiatePayment(ctx context.Context, number, requestID string) (payment.InitiateResult, error) {
	order, err := s.store.GetOrderByNumber(ctx, number)
	if err != nil {
		return payment.InitiateResult{}, fmt.Errorf("store.GetOrderByNumber: %w", err)
	}
	return s.payments.InitiatePayment(ctx, order.ID, requestID)
}

// CheckPayment reconciles the order against the gateway and returns the
// resulting payment status
func (s *Service) CheckPayment(ctx context.Context, number, requestID string) (payment.ReconcileResult, error) {
	order, err := s.store.GetOrderByNumber(ctx, number)
	if err != nil {
		return payment.ReconcileResult{}, fmt.Errorf("store.GetOrderByNumber: %w", err)
	}
	return s.payments.Reconcile(ctx, order.ID, requestID)
}

// HandlePaymentCallback reconciles the order a provider callback points at.
// The callback payload is untrusted; only its order reference is used.
func (s *Service) HandlePaymentCallback(ctx context.Context, externalID, requestID string) (payment.ReconcileResult, error) {
	return s.payments.ReconcileByExternalID(ctx, externalID, requestID)
}

// HealthCheck reports reachability of the database and the payment provider.
// A gateway outage degrades payments but does not take the service down.
func (s *Service) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Database: s.store.Ping(ctx) == nil,
		Gateway:  s.gateway.Ping(ctx).Success,
	}
}

func (s *Service) publish(ctx context.Context, event *models.Event, requestID string) {
	if err := s.notifier.PublishEvent(ctx, event); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish domain event", requestID, err,
			map[string]interface{}{"event_type": string(event.Type)})
	}
}
