package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"catering-system/internal/config"
	"catering-system/internal/logger"
)

// Client talks to the live payment provider over HTTPS
type Client struct {
	cfg        config.GatewayConfig
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a live gateway client. The credentials are fixed at
// construction; every request carries a bounded timeout.
func NewClient(cfg config.GatewayConfig, log *logger.Logger) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		logger: log,
	}
}

type clientPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type locationPayload struct {
	Address string `json:"address"`
}

type optionsPayload struct {
	ReturnURL string `json:"return_url"`
	Language  string `json:"language"`
	Template  string `json:"template"`
	Mobile    bool   `json:"mobile"`
}

type createOrderPayload struct {
	Amount          decimal.Decimal  `json:"amount"`
	Currency        string           `json:"currency"`
	MerchantOrderID string           `json:"merchant_order_id"`
	Description     string           `json:"description"`
	Client          clientPayload    `json:"client"`
	Location        *locationPayload `json:"location,omitempty"`
	Options         optionsPayload   `json:"options"`
}

type providerResponse struct {
	Orders         []OrderInfo `json:"orders"`
	FailureMessage string      `json:"failure_message"`
}

// CreateOrder opens a provider-side order and returns the payment URL.
// Transport failures map to the service-unavailable reason; non-2xx responses
// carry the provider's failure message and HTTP status.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) CreateOrderResult {
	payload := createOrderPayload{
		Amount:          req.Amount,
		Currency:        req.Currency,
		MerchantOrderID: req.MerchantOrderID,
		Description:     req.Description,
		Client: clientPayload{
			Name:  req.ClientName,
			Email: req.ClientEmail,
			Phone: req.ClientPhone,
		},
		Options: optionsPayload{
			ReturnURL: req.ReturnURL,
			Language:  req.Language,
			Template:  req.Template,
			Mobile:    req.Mobile,
		},
	}
	if req.Address != "" {
		payload.Location = &locationPayload{Address: req.Address}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return CreateOrderResult{Success: false, Reason: fmt.Sprintf("invalid order data: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/orders/create", bytes.NewReader(body))
	if err != nil {
		return CreateOrderResult{Success: false, Reason: fmt.Sprintf("invalid request: %v", err)}
	}
	c.prepareRequest(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("gateway_unavailable", "Create order request failed", "", err, map[string]interface{}{
			"merchant_order_id": req.MerchantOrderID,
		})
		return CreateOrderResult{Success: false, Reason: ReasonServiceUnavailable}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return CreateOrderResult{Success: false, Reason: ReasonServiceUnavailable}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return CreateOrderResult{
			Success:    false,
			Reason:     extractFailureReason(respBody, resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}
	}

	var parsed providerResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Orders) == 0 {
		return CreateOrderResult{
			Success:    false,
			Reason:     "malformed provider response",
			HTTPStatus: resp.StatusCode,
		}
	}

	result := CreateOrderResult{
		Success:    true,
		ExternalID: parsed.Orders[0].ID,
		PaymentURL: resp.Header.Get("Location"),
		HTTPStatus: resp.StatusCode,
	}

	c.logger.Debug("gateway_order_created", "Provider order created", "", map[string]interface{}{
		"merchant_order_id": req.MerchantOrderID,
		"external_id":       result.ExternalID,
	})

	return result
}

// GetOrderInfo fetches one provider order, optionally expanding sub-resources
func (c *Client) GetOrderInfo(ctx context.Context, externalID string, expand ...string) OrderInfoResult {
	endpoint := fmt.Sprintf("%s/orders/%s", c.cfg.BaseURL, url.PathEscape(externalID))
	if len(expand) > 0 {
		query := url.Values{}
		for _, e := range expand {
			query.Add("expand", e)
		}
		endpoint += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return OrderInfoResult{Success: false, Reason: fmt.Sprintf("invalid request: %v", err)}
	}
	c.prepareRequest(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("gateway_unavailable", "Get order info request failed", "", err, map[string]interface{}{
			"external_id": externalID,
		})
		return OrderInfoResult{Success: false, Reason: ReasonServiceUnavailable}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return OrderInfoResult{Success: false, Reason: ReasonServiceUnavailable}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return OrderInfoResult{
			Success:    false,
			Reason:     extractFailureReason(respBody, resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}
	}

	var info OrderInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return OrderInfoResult{
			Success:    false,
			Reason:     "malformed provider response",
			HTTPStatus: resp.StatusCode,
		}
	}

	return OrderInfoResult{
		Success:    true,
		Info:       info,
		Raw:        respBody,
		HTTPStatus: resp.StatusCode,
	}
}

// CheckPaymentStatus fetches the order with operations expanded and maps the
// provider status into the internal enum
func (c *Client) CheckPaymentStatus(ctx context.Context, externalID string) StatusResult {
	return resolveStatus(c.GetOrderInfo(ctx, externalID, "operations"))
}

// Ping performs the provider liveness check
func (c *Client) Ping(ctx context.Context) PingResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/ping", nil)
	if err != nil {
		return PingResult{Success: false, Reason: fmt.Sprintf("invalid request: %v", err)}
	}
	c.prepareRequest(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return PingResult{Success: false, Reason: ReasonServiceUnavailable}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PingResult{Success: false, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	var parsed struct {
		Message string `json:"message"`
		Date    string `json:"date"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return PingResult{Success: false, Reason: "malformed provider response"}
	}

	return PingResult{Success: true, Message: parsed.Message}
}

func (c *Client) prepareRequest(req *http.Request) {
	req.SetBasicAuth(c.cfg.MerchantID, c.cfg.Secret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// extractFailureReason pulls a human-readable reason out of an error body,
// falling back to the HTTP status
func extractFailureReason(body []byte, statusCode int) string {
	var parsed providerResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.FailureMessage != "" {
		return parsed.FailureMessage
	}
	return fmt.Sprintf("provider returned status %d", statusCode)
}
