// Package payment orchestrates the order payment lifecycle: it is the only
// caller of the gateway adapter that also touches the Order.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"catering-system/internal/config"
	"catering-system/internal/gateway"
	"catering-system/internal/locker"
	"catering-system/internal/logger"
	"catering-system/internal/models"
)

var (
	// ErrPaymentInFlight is returned when another initiation holds the
	// per-order lock
	ErrPaymentInFlight = errors.New("payment initiation already in flight")

	// ErrPaymentNotAllowed is returned when the order state forbids a new
	// payment attempt
	ErrPaymentNotAllowed = errors.New("payment not allowed for order state")

	// ErrNoExternalPayment is returned when reconciling an order that never
	// reached the gateway
	ErrNoExternalPayment = errors.New("order has no external payment")
)

// maxSweepBatch bounds how many orders one polling sweep reconciles
const maxSweepBatch = 100

// sweepConcurrency bounds parallel gateway polls during a sweep
const sweepConcurrency = 5

// Notifier publishes domain events; delivery failures stay with the notifier
type Notifier interface {
	PublishEvent(ctx context.Context, event *models.Event) error
}

// InitiateResult is the outcome surfaced to the payment-initiation caller
type InitiateResult struct {
	Success    bool   `json:"success"`
	PaymentURL string `json:"payment_url,omitempty"`
	Reason     string `json:"error,omitempty"`
}

// ReconcileResult is the outcome of one reconciliation pass
type ReconcileResult struct {
	Success       bool                 `json:"success"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	Reason        string               `json:"error,omitempty"`
}

// Service coordinates the order state machine, the gateway adapter and the
// notification pipeline
type Service struct {
	store      OrderStore
	gateway    gateway.Gateway
	locker     locker.PaymentLocker
	notifier   Notifier
	logger     *logger.Logger
	gatewayCfg config.GatewayConfig
	policy     config.PaymentsConfig
}

// NewService creates the reconciliation service
func NewService(store OrderStore, gw gateway.Gateway, lock locker.PaymentLocker,
	notifier Notifier, log *logger.Logger, gatewayCfg config.GatewayConfig, policy config.PaymentsConfig) *Service {
	return &Service{
		store:      store,
		gateway:    gw,
		locker:     lock,
		notifier:   notifier,
		logger:     log,
		gatewayCfg: gatewayCfg,
		policy:     policy,
	}
}

// InitiatePayment creates a provider-side order for one payment attempt.
// The merchant order id is unique per order+attempt and acts as the gateway
// idempotency key. The gateway call happens outside any database transaction;
// the per-order Redis lock guarantees at most one initiation in flight and is
// taken before the order is read, so the attempt number baked into the
// merchant order id matches the count the locked update persists.
func (s *Service) InitiatePayment(ctx context.Context, orderID int, requestID string) (InitiateResult, error) {
	acquired, err := s.locker.Acquire(ctx, orderID)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("locker.Acquire: %w", err)
	}
	if !acquired {
		return InitiateResult{}, ErrPaymentInFlight
	}
	defer func() {
		if err := s.locker.Release(ctx, orderID); err != nil {
			s.logger.Error("payment_lock_release_failed", "Failed to release initiation lock", requestID, err,
				map[string]interface{}{"order_id": orderID})
		}
	}()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("store.GetOrderByID: %w", err)
	}

	if !paymentAllowed(order) {
		return InitiateResult{}, fmt.Errorf("order %s status=%s payment_status=%s attempts=%d: %w",
			order.Number, order.Status, order.PaymentStatus, order.PaymentAttempts, ErrPaymentNotAllowed)
	}

	attempt := order.PaymentAttempts + 1
	merchantOrderID := fmt.Sprintf("%s-A%d", order.Number, attempt)

	createReq := gateway.CreateOrderRequest{
		Amount:          order.FinalAmount,
		Currency:        s.gatewayCfg.Currency,
		MerchantOrderID: merchantOrderID,
		Description:     fmt.Sprintf("Catering order %s", order.Number),
		ClientName:      order.ClientName,
		ClientEmail:     order.ClientEmail,
		ReturnURL:       s.gatewayCfg.ReturnURL,
		Language:        s.gatewayCfg.Language,
		Template:        s.gatewayCfg.Template,
	}
	if order.ClientPhone != nil {
		createReq.ClientPhone = *order.ClientPhone
	}
	if order.DeliveryAddress != nil {
		createReq.Address = *order.DeliveryAddress
	}

	res := s.gateway.CreateOrder(ctx, createReq)
	if !res.Success {
		return s.handleCreateFailure(ctx, order, res, requestID)
	}

	updated, err := s.store.WithOrderLock(ctx, orderID, func(o *models.Order) error {
		if err := o.IncrementPaymentAttempts(); err != nil {
			return err
		}
		now := time.Now().UTC()
		o.ExternalPaymentID = &res.ExternalID
		o.PaymentURL = &res.PaymentURL
		o.PaymentCreatedAt = &now
		o.PaymentStatus = models.PaymentPending
		if o.Status == models.StatusSubmitted {
			o.Status = models.StatusPendingPayment
		}
		return nil
	})
	if err != nil {
		return InitiateResult{}, fmt.Errorf("store.WithOrderLock: %w", err)
	}

	s.logger.Info("payment_initiated", "Payment attempt created at gateway", requestID, map[string]interface{}{
		"order_number":      updated.Number,
		"merchant_order_id": merchantOrderID,
		"external_id":       res.ExternalID,
		"attempt":           updated.PaymentAttempts,
	})

	return InitiateResult{Success: true, PaymentURL: res.PaymentURL}, nil
}

// handleCreateFailure applies the failure policy for an unsuccessful
// provider order creation
func (s *Service) handleCreateFailure(ctx context.Context, order *models.Order,
	res gateway.CreateOrderResult, requestID string) (InitiateResult, error) {

	if res.Reason == gateway.ReasonServiceUnavailable {
		// Timed-out or unreachable gateway leaves the order untouched
		s.logger.Error("gateway_unavailable", "Payment initiation could not reach gateway", requestID, nil,
			map[string]interface{}{"order_number": order.Number})
		return InitiateResult{Success: false, Reason: res.Reason}, nil
	}

	s.logger.Info("payment_rejected", "Gateway rejected payment initiation", requestID, map[string]interface{}{
		"order_number": order.Number,
		"reason":       res.Reason,
		"http_status":  res.HTTPStatus,
	})

	if !s.policy.ConsumeAttemptOnReject {
		return InitiateResult{Success: false, Reason: res.Reason}, nil
	}

	oldStatus := order.Status
	updated, err := s.store.WithOrderLock(ctx, order.ID, func(o *models.Order) error {
		if err := o.IncrementPaymentAttempts(); err != nil {
			return err
		}
		oldStatus = o.Status
		o.UpdatePaymentStatus(models.PaymentFailed, nil)
		return nil
	})
	if err != nil {
		return InitiateResult{}, fmt.Errorf("store.WithOrderLock: %w", err)
	}

	s.publish(ctx, models.NewOrderEvent(models.EventPaymentFailed, updated, oldStatus, res.Reason), requestID)
	if updated.Status != oldStatus {
		s.publish(ctx, models.NewOrderEvent(models.EventOrderStatusChanged, updated, oldStatus, ""), requestID)
	}

	return InitiateResult{Success: false, Reason: res.Reason}, nil
}

// Reconcile fetches the gateway's authoritative status and applies it to the
// order. Safe to run repeatedly: the same provider state converges to the
// same local state, and events fire only on actual change.
func (s *Service) Reconcile(ctx context.Context, orderID int, requestID string) (ReconcileResult, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("store.GetOrderByID: %w", err)
	}
	if order.ExternalPaymentID == nil {
		return ReconcileResult{}, fmt.Errorf("order %s: %w", order.Number, ErrNoExternalPayment)
	}

	status := s.gateway.CheckPaymentStatus(ctx, *order.ExternalPaymentID)
	if !status.Success {
		s.logger.Error("reconcile_failed", "Could not fetch gateway status", requestID, nil, map[string]interface{}{
			"order_number": order.Number,
			"reason":       status.Reason,
		})
		return ReconcileResult{Success: false, PaymentStatus: order.PaymentStatus, Reason: status.Reason}, nil
	}

	// A provider status already applied leaves the row untouched: repeated
	// callbacks and polls of an unchanged state must not rewrite anything
	if status.Status == order.PaymentStatus {
		return ReconcileResult{Success: true, PaymentStatus: order.PaymentStatus}, nil
	}

	var oldStatus models.OrderStatus
	var oldPayment models.PaymentStatus
	updated, err := s.store.WithOrderLock(ctx, orderID, func(o *models.Order) error {
		oldStatus = o.Status
		oldPayment = o.PaymentStatus
		o.UpdatePaymentStatus(status.Status, status.Details)
		return nil
	})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("store.WithOrderLock: %w", err)
	}

	if updated.PaymentStatus != oldPayment {
		s.logger.Info("payment_status_changed", "Applied gateway status to order", requestID, map[string]interface{}{
			"order_number": updated.Number,
			"old_status":   string(oldPayment),
			"new_status":   string(updated.PaymentStatus),
		})
	}

	if updated.Status != oldStatus {
		s.publish(ctx, models.NewOrderEvent(models.EventOrderStatusChanged, updated, oldStatus, ""), requestID)
	}
	if updated.PaymentStatus == models.PaymentFailed && oldPayment != models.PaymentFailed {
		s.publish(ctx, models.NewOrderEvent(models.EventPaymentFailed, updated, oldStatus, "payment failed at gateway"), requestID)
	}

	return ReconcileResult{Success: true, PaymentStatus: updated.PaymentStatus}, nil
}

// ReconcileByExternalID resolves a provider callback to the local order and
// reconciles it; callbacks and polling converge on the same path
func (s *Service) ReconcileByExternalID(ctx context.Context, externalID, requestID string) (ReconcileResult, error) {
	order, err := s.store.FindByExternalPaymentID(ctx, externalID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("store.FindByExternalPaymentID: %w", err)
	}
	return s.Reconcile(ctx, order.ID, requestID)
}

// Sweep reconciles every order awaiting a payment outcome
func (s *Service) Sweep(ctx context.Context, requestID string) error {
	ids, err := s.store.ListAwaitingReconciliation(ctx, maxSweepBatch)
	if err != nil {
		return fmt.Errorf("store.ListAwaitingReconciliation: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			if _, err := s.Reconcile(gctx, id, requestID); err != nil {
				s.logger.Error("sweep_reconcile_failed", "Failed to reconcile order", requestID, err,
					map[string]interface{}{"order_id": id})
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *Service) publish(ctx context.Context, event *models.Event, requestID string) {
	if err := s.notifier.PublishEvent(ctx, event); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish domain event", requestID, err,
			map[string]interface{}{"event_type": string(event.Type)})
	}
}

// paymentAllowed reports whether a new gateway order may be opened: either no
// attempt has been made yet, or a failed attempt may be retried
func paymentAllowed(o *models.Order) bool {
	fresh := o.PaymentAttempts == 0 && o.PaymentStatus == models.PaymentPending &&
		(o.Status == models.StatusSubmitted || o.Status == models.StatusPendingPayment)
	return fresh || o.CanRetryPayment()
}
