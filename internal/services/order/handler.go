package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"catering-system/internal/logger"
	"catering-system/internal/models"
	"catering-system/internal/services/payment"
)

// Handler handles HTTP requests for the order service
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new order handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// SetupRoutes sets up the HTTP routes
func (h *Handler) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /applications", h.withLogging(h.CreateApplication))
	mux.HandleFunc("POST /applications/{id}/status", h.withLogging(h.UpdateApplicationStatus))

	mux.HandleFunc("POST /orders", h.withLogging(h.CreateOrder))
	mux.HandleFunc("GET /orders/{number}", h.withLogging(h.GetOrder))
	mux.HandleFunc("POST /orders/{number}/submit", h.withLogging(h.SubmitOrder))
	mux.HandleFunc("POST /orders/{number}/status", h.withLogging(h.UpdateOrderStatus))
	mux.HandleFunc("POST /orders/{number}/payment", h.withLogging(h.InitiatePayment))
	mux.HandleFunc("GET /orders/{number}/payment", h.withLogging(h.CheckPayment))

	mux.HandleFunc("GET /payments/callback", h.withLogging(h.PaymentCallback))
	mux.HandleFunc("POST /payments/callback", h.withLogging(h.PaymentCallback))

	mux.HandleFunc("GET /health", h.withLogging(h.HealthCheck))

	return mux
}

// CreateApplication handles POST /applications requests
func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	var req models.CreateApplicationRequest
	if !h.decodeBody(w, r, &req, requestID) {
		return
	}

	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	app, err := h.service.CreateApplication(ctx, &req, requestID)
	if err != nil {
		h.logger.Error("application_creation_failed", "Failed to create application", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, app, requestID)
}

// UpdateApplicationStatus handles POST /applications/{id}/status requests
func (h *Handler) UpdateApplicationStatus(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid application id", requestID)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if !h.decodeBody(w, r, &req, requestID) {
		return
	}

	status, err := models.ToApplicationStatus(req.Status)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	app, err := h.service.UpdateApplicationStatus(ctx, id, status, requestID)
	if err != nil {
		h.handleServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, app, requestID)
}

// CreateOrder handles POST /orders requests
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	h.logger.Debug("order_received", "Received order creation request", requestID, map[string]interface{}{
		"content_length": r.ContentLength,
		"remote_addr":    r.RemoteAddr,
	})

	var req models.CreateOrderRequest
	if !h.decodeBody(w, r, &req, requestID) {
		return
	}

	if err := req.Validate(); err != nil {
		h.logger.Error("validation_failed", "Request validation failed", requestID, err, map[string]interface{}{
			"client_name":   req.ClientName,
			"delivery_type": req.DeliveryType,
		})
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	response, err := h.service.CreateOrder(ctx, &req, requestID)
	if err != nil {
		h.handleServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, response, requestID)
}

// GetOrder handles GET /orders/{number} requests
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, err := h.service.GetOrder(ctx, r.PathValue("number"))
	if err != nil {
		h.handleServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, order, requestID)
}

// SubmitOrder handles POST /orders/{number}/submit requests
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	order, err := h.service.SubmitOrder(ctx, r.PathValue("number"), requestID)
	if err != nil {
		h.handleServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, order, requestID)
}

// UpdateOrderStatus handles POST /orders/{number}/status requests
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	var req struct {
		Status string `json:"status"`
	}
	if !h.decodeBody(w, r, &req, requestID) {
		return
	}

	status, err := models.ToOrderStatus(req.Status)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	order, err := h.service.UpdateOrderStatus(ctx, r.PathValue("number"), status, requestID)
	if err != nil {
		h.handleServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, order, requestID)
}

// InitiatePayment handles POST /orders/{number}/payment requests
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := h.service.InitiatePayment(ctx, r.PathValue("number"), requestID)
	if err != nil {
		h.handleServiceError(w, err, requestID)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, result, requestID)
}

// CheckPayment handles GET /orders/{number}/payment requests
func (h *Handler) CheckPayment(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := h.service.CheckPayment(ctx, r.PathValue("number"), requestID)
	if err != nil {
		h.handleServiceError(w, err, requestID)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, result, requestID)
}

// PaymentCallback handles provider callbacks. The payload carries only a
// pointer to the provider order; the authoritative status is re-fetched.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	externalID := r.URL.Query().Get("order")
	if externalID == "" && r.Body != nil {
		var req struct {
			Order string `json:"order"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			externalID = req.Order
		}
	}
	if externalID == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "Missing order reference", requestID)
		return
	}

	h.logger.Info("payment_callback_received", "Received payment callback", requestID, map[string]interface{}{
		"external_id": externalID,
		"remote_addr": r.RemoteAddr,
	})

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := h.service.HandlePaymentCallback(ctx, externalID, requestID)
	if err != nil {
		h.handleServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, result, requestID)
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := h.service.HealthCheck(ctx)

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "order-service",
		"database":  health.Database,
		"gateway":   health.Gateway,
	}

	w.Header().Set("Content-Type", "application/json")

	if health.Database {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		response["status"] = "unhealthy"
	}

	json.NewEncoder(w).Encode(response)
}

// decodeBody parses a JSON request body, writing the error response itself
// when parsing fails
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, requestID string) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		h.logger.Error("validation_failed", "Failed to parse request body", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return false
	}
	return true
}

// handleServiceError maps service errors onto HTTP status codes
func (h *Handler) handleServiceError(w http.ResponseWriter, err error, requestID string) {
	switch {
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrApplicationNotFound), errors.Is(err, payment.ErrNotFound):
		h.writeErrorResponse(w, http.StatusNotFound, err.Error(), requestID)
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, payment.ErrPaymentNotAllowed),
		errors.Is(err, payment.ErrNoExternalPayment):
		h.writeErrorResponse(w, http.StatusConflict, err.Error(), requestID)
	case errors.Is(err, payment.ErrPaymentInFlight):
		h.writeErrorResponse(w, http.StatusTooManyRequests, err.Error(), requestID)
	default:
		h.logger.Error("request_failed", "Unhandled service error", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
	}
}

// writeJSON writes a successful response in JSON format
func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	}

	json.NewEncoder(w).Encode(errorResponse)
}

// withLogging adds request logging middleware
func (h *Handler) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.GenerateRequestID()

		h.logger.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"user_agent":  r.Header.Get("User-Agent"),
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(rw, r)

		duration := time.Since(start)
		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": duration.Milliseconds(),
			})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
