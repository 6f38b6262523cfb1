package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// rejectedCents marks a sandbox order as rejected at creation time, the way
// provider test environments reserve magic amounts
var rejectedCents = decimal.NewFromFloat(0.01)

// Sandbox is a deterministic in-memory gateway for local and test execution.
// Amounts with cents equal to .01 are rejected; every other created order
// reports charged on its first status check.
type Sandbox struct {
	mu     sync.Mutex
	orders map[string]OrderInfo
}

// NewSandbox creates an empty sandbox gateway
func NewSandbox() *Sandbox {
	return &Sandbox{orders: make(map[string]OrderInfo)}
}

// CreateOrder records the order in memory and hands back a canned payment URL
func (s *Sandbox) CreateOrder(_ context.Context, req CreateOrderRequest) CreateOrderResult {
	cents := req.Amount.Mod(decimal.NewFromInt(1))
	if cents.Equal(rejectedCents) {
		return CreateOrderResult{
			Success:    false,
			Reason:     "rejected by issuer",
			HTTPStatus: http.StatusPaymentRequired,
		}
	}

	externalID := "sb-" + req.MerchantOrderID

	s.mu.Lock()
	// Idempotent on the merchant order id: re-creating returns the same order
	if _, exists := s.orders[externalID]; !exists {
		created := time.Now().UTC().Format(time.RFC3339)
		s.orders[externalID] = OrderInfo{
			ID:            externalID,
			Status:        "charged",
			Amount:        req.Amount,
			AmountCharged: req.Amount,
			Operations: []Operation{
				{Type: "authorize", Status: "success", Amount: req.Amount, Created: created},
				{Type: "charge", Status: "success", Amount: req.Amount, Created: created},
			},
		}
	}
	s.mu.Unlock()

	return CreateOrderResult{
		Success:    true,
		ExternalID: externalID,
		PaymentURL: "https://sandbox.invalid/checkout/" + externalID,
		HTTPStatus: http.StatusOK,
	}
}

// GetOrderInfo returns the stored order or a not-found failure
func (s *Sandbox) GetOrderInfo(_ context.Context, externalID string, expand ...string) OrderInfoResult {
	s.mu.Lock()
	info, ok := s.orders[externalID]
	s.mu.Unlock()

	if !ok {
		return OrderInfoResult{
			Success:    false,
			Reason:     "order not found",
			HTTPStatus: http.StatusNotFound,
		}
	}

	if len(expand) == 0 {
		info.Operations = nil
	}

	raw, err := json.Marshal(info)
	if err != nil {
		return OrderInfoResult{Success: false, Reason: fmt.Sprintf("marshal order info: %v", err)}
	}

	return OrderInfoResult{
		Success:    true,
		Info:       info,
		Raw:        raw,
		HTTPStatus: http.StatusOK,
	}
}

// CheckPaymentStatus maps the stored provider status like the live client does
func (s *Sandbox) CheckPaymentStatus(ctx context.Context, externalID string) StatusResult {
	return resolveStatus(s.GetOrderInfo(ctx, externalID, "operations"))
}

// Ping always succeeds
func (s *Sandbox) Ping(_ context.Context) PingResult {
	return PingResult{Success: true, Message: "sandbox"}
}

// SetOrderStatus overrides a stored order's provider status. Test hook for
// exercising the non-charged reconciliation paths.
func (s *Sandbox) SetOrderStatus(externalID, providerStatus string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, ok := s.orders[externalID]; ok {
		info.Status = providerStatus
		s.orders[externalID] = info
	}
}
