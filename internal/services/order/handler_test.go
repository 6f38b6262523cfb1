package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catering-system/internal/logger"
	"catering-system/internal/models"
	"catering-system/internal/services/payment"
)

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore, *fakePayments) {
	t.Helper()

	store := newFakeStore()
	payments := &fakePayments{}
	log := logger.New("order-test")
	service := NewService(store, payments, &fakePinger{}, &fakeNotifier{}, log)
	handler := NewHandler(service, log)

	server := httptest.NewServer(handler.SetupRoutes())
	t.Cleanup(server.Close)

	return server, store, payments
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func createTestOrder(t *testing.T, server *httptest.Server, submit bool) string {
	t.Helper()

	body := `{
		"client_name": "Anna Keller",
		"client_email": "anna@example.com",
		"delivery_type": "pickup",
		"submit": ` + map[bool]string{true: "true", false: "false"}[submit] + `,
		"items": [{"name": "Canape platter", "quantity": 2, "price": 45.00}]
	}`

	resp := postJSON(t, server.URL+"/orders", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.CreateOrderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created.OrderNumber
}

func TestHandler_CreateOrder(t *testing.T) {
	server, store, _ := newTestServer(t)

	number := createTestOrder(t, server, false)
	assert.NotEmpty(t, number)
	assert.NotNil(t, store.orders[number])
}

func TestHandler_CreateOrder_ValidationError(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/orders", `{"client_name": "Anna", "client_email": "anna@example.com", "delivery_type": "pickup", "items": []}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Contains(t, errResp["error"], "items")
	assert.NotEmpty(t, errResp["request_id"])
}

func TestHandler_CreateOrder_MalformedJSON(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/orders", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_GetOrder(t *testing.T) {
	server, _, _ := newTestServer(t)
	number := createTestOrder(t, server, false)

	resp, err := http.Get(server.URL + "/orders/" + number)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var order models.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&order))
	assert.Equal(t, number, order.Number)
	assert.Equal(t, models.StatusDraft, order.Status)
	assert.Len(t, order.Items, 1)
}

func TestHandler_GetOrder_NotFound(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/orders/ORD_20260101_999")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_SubmitOrder(t *testing.T) {
	server, store, _ := newTestServer(t)
	number := createTestOrder(t, server, false)

	resp := postJSON(t, server.URL+"/orders/"+number+"/submit", "{}")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, models.StatusSubmitted, store.orders[number].Status)
}

func TestHandler_UpdateOrderStatus_InvalidTransition(t *testing.T) {
	server, _, _ := newTestServer(t)
	number := createTestOrder(t, server, false)

	resp := postJSON(t, server.URL+"/orders/"+number+"/status", `{"status": "completed"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandler_UpdateOrderStatus_UnknownStatus(t *testing.T) {
	server, _, _ := newTestServer(t)
	number := createTestOrder(t, server, false)

	resp := postJSON(t, server.URL+"/orders/"+number+"/status", `{"status": "teleported"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_InitiatePayment(t *testing.T) {
	server, _, payments := newTestServer(t)
	payments.initiateRes = payment.InitiateResult{Success: true, PaymentURL: "https://pay.example.com/x"}

	number := createTestOrder(t, server, true)

	resp := postJSON(t, server.URL+"/orders/"+number+"/payment", "{}")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result payment.InitiateResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "https://pay.example.com/x", result.PaymentURL)
}

func TestHandler_InitiatePayment_InFlight(t *testing.T) {
	server, _, payments := newTestServer(t)
	payments.initiateErr = payment.ErrPaymentInFlight

	number := createTestOrder(t, server, true)

	resp := postJSON(t, server.URL+"/orders/"+number+"/payment", "{}")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestHandler_InitiatePayment_Rejected(t *testing.T) {
	server, _, payments := newTestServer(t)
	payments.initiateRes = payment.InitiateResult{Success: false, Reason: "rejected by issuer"}

	number := createTestOrder(t, server, true)

	resp := postJSON(t, server.URL+"/orders/"+number+"/payment", "{}")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHandler_PaymentCallback_QueryParam(t *testing.T) {
	server, _, payments := newTestServer(t)
	payments.reconcileRes = payment.ReconcileResult{Success: true, PaymentStatus: models.PaymentCharged}

	resp, err := http.Get(server.URL + "/payments/callback?order=ext-55")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"ext-55"}, payments.callbacks)
}

func TestHandler_PaymentCallback_Body(t *testing.T) {
	server, _, payments := newTestServer(t)
	payments.reconcileRes = payment.ReconcileResult{Success: true, PaymentStatus: models.PaymentCharged}

	resp := postJSON(t, server.URL+"/payments/callback", `{"order": "ext-56"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"ext-56"}, payments.callbacks)
}

func TestHandler_PaymentCallback_MissingReference(t *testing.T) {
	server, _, payments := newTestServer(t)

	resp := postJSON(t, server.URL+"/payments/callback", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, payments.callbacks)
}

func TestHandler_CreateApplication(t *testing.T) {
	server, store, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/applications", `{"client_name": "Max Weber", "client_email": "max@example.com", "guests": 40}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var app models.Application
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&app))
	assert.Equal(t, models.ApplicationNew, app.Status)
	assert.NotNil(t, store.applications[app.ID])
}

func TestHandler_UpdateApplicationStatus(t *testing.T) {
	server, store, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/applications", `{"client_name": "Max Weber", "client_email": "max@example.com"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var app models.Application
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&app))

	resp = postJSON(t, server.URL+"/applications/1/status", `{"status": "rejected"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.ApplicationRejected, store.applications[app.ID].Status)
}

func TestHandler_HealthCheck(t *testing.T) {
	server, store, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, true, health["database"])
	assert.Equal(t, true, health["gateway"])

	store.pingErr = context.DeadlineExceeded
	resp, err = http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
