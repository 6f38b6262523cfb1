// Package gateway isolates all network interaction with the external payment
// provider. Every operation returns a typed result: expected failures
// (rejections, timeouts, provider errors) never surface as Go errors.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"catering-system/internal/config"
	"catering-system/internal/logger"
	"catering-system/internal/models"
)

// ReasonServiceUnavailable is the reason reported for transport-level failures
const ReasonServiceUnavailable = "service unavailable"

// Gateway is the adapter boundary to the payment provider
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) CreateOrderResult
	GetOrderInfo(ctx context.Context, externalID string, expand ...string) OrderInfoResult
	CheckPaymentStatus(ctx context.Context, externalID string) StatusResult
	Ping(ctx context.Context) PingResult
}

// CreateOrderRequest carries everything needed to open a provider-side order.
// MerchantOrderID is the idempotency key, unique per order+attempt.
type CreateOrderRequest struct {
	Amount          decimal.Decimal
	Currency        string
	MerchantOrderID string
	Description     string
	ClientName      string
	ClientEmail     string
	ClientPhone     string
	Address         string
	ReturnURL       string
	Language        string
	Template        string
	Mobile          bool
}

// CreateOrderResult is the typed outcome of CreateOrder
type CreateOrderResult struct {
	Success    bool
	ExternalID string
	PaymentURL string
	Reason     string
	HTTPStatus int
}

// Operation is one authorize/charge/refund operation on a provider order
type Operation struct {
	Type    string          `json:"type"`
	Status  string          `json:"status"`
	Amount  decimal.Decimal `json:"amount"`
	Created string          `json:"created"`
}

// OrderInfo is the provider's view of one order
type OrderInfo struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	AmountCharged  decimal.Decimal `json:"amount_charged"`
	AmountRefunded decimal.Decimal `json:"amount_refunded"`
	Operations     []Operation     `json:"operations"`
}

// OrderInfoResult is the typed outcome of GetOrderInfo. Raw preserves the
// provider response body for the order's payment_details blob.
type OrderInfoResult struct {
	Success    bool
	Info       OrderInfo
	Raw        json.RawMessage
	Reason     string
	HTTPStatus int
}

// StatusResult is the typed outcome of CheckPaymentStatus
type StatusResult struct {
	Success bool
	Status  models.PaymentStatus
	Details json.RawMessage
	Reason  string
}

// PingResult is the typed outcome of the liveness check
type PingResult struct {
	Success bool
	Message string
	Reason  string
}

// New selects the gateway implementation from configuration. Sandbox is an
// explicit mode, not a credential-value check.
func New(cfg config.GatewayConfig, log *logger.Logger) Gateway {
	if cfg.Mode == config.GatewaySandbox {
		return NewSandbox()
	}
	return NewClient(cfg, log)
}

// resolveStatus turns a fetched order info result into a mapped status result
func resolveStatus(res OrderInfoResult) StatusResult {
	if !res.Success {
		return StatusResult{Success: false, Reason: res.Reason}
	}

	return StatusResult{
		Success: true,
		Status:  MapProviderStatus(res.Info.Status),
		Details: res.Raw,
	}
}
