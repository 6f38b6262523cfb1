package payment

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catering-system/internal/config"
	"catering-system/internal/gateway"
	"catering-system/internal/logger"
	"catering-system/internal/models"
)

type fakeStore struct {
	mu     sync.Mutex
	orders map[int]*models.Order
	reads  int
}

func newFakeStore(orders ...*models.Order) *fakeStore {
	s := &fakeStore{orders: make(map[int]*models.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeStore) GetOrderByID(_ context.Context, id int) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *o
	return &clone, nil
}

func (s *fakeStore) FindByExternalPaymentID(_ context.Context, externalID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ExternalPaymentID != nil && *o.ExternalPaymentID == externalID {
			clone := *o
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) ListAwaitingReconciliation(_ context.Context, limit int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for id, o := range s.orders {
		if o.PaymentStatus == models.PaymentPending && o.ExternalPaymentID != nil && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) WithOrderLock(_ context.Context, id int, fn func(o *models.Order) error) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	clone := *o
	return &clone, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[int]bool
	deny     bool
	released []int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[int]bool)}
}

func (l *fakeLocker) Acquire(_ context.Context, orderID int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deny || l.held[orderID] {
		return false, nil
	}
	l.held[orderID] = true
	return true, nil
}

func (l *fakeLocker) Release(_ context.Context, orderID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, orderID)
	l.released = append(l.released, orderID)
	return nil
}

type fakeGateway struct {
	mu          sync.Mutex
	createRes   gateway.CreateOrderResult
	statusRes   gateway.StatusResult
	createReqs  []gateway.CreateOrderRequest
	statusCalls []string
}

func (g *fakeGateway) CreateOrder(_ context.Context, req gateway.CreateOrderRequest) gateway.CreateOrderResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createReqs = append(g.createReqs, req)
	return g.createRes
}

func (g *fakeGateway) GetOrderInfo(_ context.Context, _ string, _ ...string) gateway.OrderInfoResult {
	return gateway.OrderInfoResult{}
}

func (g *fakeGateway) CheckPaymentStatus(_ context.Context, externalID string) gateway.StatusResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls = append(g.statusCalls, externalID)
	return g.statusRes
}

func (g *fakeGateway) Ping(_ context.Context) gateway.PingResult {
	return gateway.PingResult{Success: true}
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []*models.Event
}

func (n *fakeNotifier) PublishEvent(_ context.Context, event *models.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) types() []models.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.EventType
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store    *fakeStore
	locker   *fakeLocker
	gateway  *fakeGateway
	notifier *fakeNotifier
	service  *Service
}

func newFixture(t *testing.T, consumeOnReject bool, orders ...*models.Order) *fixture {
	t.Helper()

	f := &fixture{
		store:    newFakeStore(orders...),
		locker:   newFakeLocker(),
		gateway:  &fakeGateway{},
		notifier: &fakeNotifier{},
	}

	gatewayCfg := config.GatewayConfig{
		Currency:  "EUR",
		ReturnURL: "https://catering.example.com/payment/return",
		Language:  "en",
		Template:  "default",
	}
	policy := config.PaymentsConfig{ConsumeAttemptOnReject: consumeOnReject}

	f.service = NewService(f.store, f.gateway, f.locker, f.notifier,
		logger.New("payment-test"), gatewayCfg, policy)
	return f
}

func submittedOrder(id int) *models.Order {
	return &models.Order{
		ID:            id,
		Number:        "ORD_20260815_001",
		ClientName:    "Anna Keller",
		ClientEmail:   "anna@example.com",
		Status:        models.StatusSubmitted,
		PaymentStatus: models.PaymentPending,
		FinalAmount:   decimal.NewFromFloat(245.50),
	}
}

func pendingOrder(id int, externalID string) *models.Order {
	o := submittedOrder(id)
	o.Status = models.StatusPendingPayment
	o.PaymentAttempts = 1
	o.ExternalPaymentID = &externalID
	return o
}

func TestInitiatePayment_Success(t *testing.T) {
	f := newFixture(t, true, submittedOrder(1))
	f.gateway.createRes = gateway.CreateOrderResult{
		Success:    true,
		ExternalID: "ext-123",
		PaymentURL: "https://pay.example.com/ext-123",
	}

	res, err := f.service.InitiatePayment(context.Background(), 1, "req-1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "https://pay.example.com/ext-123", res.PaymentURL)

	require.Len(t, f.gateway.createReqs, 1)
	req := f.gateway.createReqs[0]
	assert.Equal(t, "ORD_20260815_001-A1", req.MerchantOrderID)
	assert.Equal(t, "EUR", req.Currency)
	assert.True(t, req.Amount.Equal(decimal.NewFromFloat(245.50)))

	order := f.store.orders[1]
	assert.Equal(t, models.StatusPendingPayment, order.Status)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	assert.Equal(t, 1, order.PaymentAttempts)
	require.NotNil(t, order.ExternalPaymentID)
	assert.Equal(t, "ext-123", *order.ExternalPaymentID)
	require.NotNil(t, order.PaymentCreatedAt)

	assert.Equal(t, []int{1}, f.locker.released)
	assert.Empty(t, f.notifier.events)
}

func TestInitiatePayment_RetryUsesNextAttemptKey(t *testing.T) {
	order := submittedOrder(2)
	order.Status = models.StatusPendingPayment
	order.PaymentStatus = models.PaymentFailed
	order.PaymentAttempts = 1

	f := newFixture(t, true, order)
	f.gateway.createRes = gateway.CreateOrderResult{
		Success:    true,
		ExternalID: "ext-retry",
		PaymentURL: "https://pay.example.com/ext-retry",
	}

	_, err := f.service.InitiatePayment(context.Background(), 2, "req-2")
	require.NoError(t, err)

	require.Len(t, f.gateway.createReqs, 1)
	assert.Equal(t, "ORD_20260815_001-A2", f.gateway.createReqs[0].MerchantOrderID)
	assert.Equal(t, 2, f.store.orders[2].PaymentAttempts)
}

func TestInitiatePayment_LockHeld(t *testing.T) {
	f := newFixture(t, true, submittedOrder(1))
	f.locker.deny = true

	_, err := f.service.InitiatePayment(context.Background(), 1, "req-1")
	require.ErrorIs(t, err, ErrPaymentInFlight)

	assert.Empty(t, f.gateway.createReqs)
	assert.Equal(t, 0, f.store.orders[1].PaymentAttempts)
	// The attempt count is read under the lock, never before it
	assert.Equal(t, 0, f.store.reads)
}

func TestInitiatePayment_NotAllowed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(o *models.Order)
	}{
		{
			name: "already paid",
			setup: func(o *models.Order) {
				o.Status = models.StatusPaid
				o.PaymentStatus = models.PaymentCharged
				o.PaymentAttempts = 1
			},
		},
		{
			name: "draft order",
			setup: func(o *models.Order) {
				o.Status = models.StatusDraft
			},
		},
		{
			name: "attempts exhausted",
			setup: func(o *models.Order) {
				o.Status = models.StatusCancelled
				o.PaymentStatus = models.PaymentFailed
				o.PaymentAttempts = models.MaxPaymentAttempts
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := submittedOrder(1)
			tt.setup(order)

			f := newFixture(t, true, order)
			_, err := f.service.InitiatePayment(context.Background(), 1, "req-1")

			require.ErrorIs(t, err, ErrPaymentNotAllowed)
			assert.Empty(t, f.gateway.createReqs)
			assert.Equal(t, []int{1}, f.locker.released)
		})
	}
}

func TestInitiatePayment_RejectConsumesAttempt(t *testing.T) {
	f := newFixture(t, true, submittedOrder(1))
	f.gateway.createRes = gateway.CreateOrderResult{
		Success:    false,
		Reason:     "rejected by issuer",
		HTTPStatus: 402,
	}

	res, err := f.service.InitiatePayment(context.Background(), 1, "req-1")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, "rejected by issuer", res.Reason)

	order := f.store.orders[1]
	assert.Equal(t, 1, order.PaymentAttempts)
	assert.Equal(t, models.PaymentFailed, order.PaymentStatus)
	assert.Equal(t, models.StatusSubmitted, order.Status)

	assert.Equal(t, []models.EventType{models.EventPaymentFailed}, f.notifier.types())
}

func TestInitiatePayment_RejectAtCapCancels(t *testing.T) {
	order := submittedOrder(1)
	order.Status = models.StatusPendingPayment
	order.PaymentStatus = models.PaymentFailed
	order.PaymentAttempts = models.MaxPaymentAttempts - 1

	f := newFixture(t, true, order)
	f.gateway.createRes = gateway.CreateOrderResult{Success: false, Reason: "rejected by issuer"}

	res, err := f.service.InitiatePayment(context.Background(), 1, "req-1")
	require.NoError(t, err)
	assert.False(t, res.Success)

	got := f.store.orders[1]
	assert.Equal(t, models.MaxPaymentAttempts, got.PaymentAttempts)
	assert.Equal(t, models.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, models.StatusCancelled, got.Status)

	assert.Equal(t, []models.EventType{models.EventPaymentFailed, models.EventOrderStatusChanged}, f.notifier.types())
}

func TestInitiatePayment_RejectWithoutConsumePolicy(t *testing.T) {
	f := newFixture(t, false, submittedOrder(1))
	f.gateway.createRes = gateway.CreateOrderResult{Success: false, Reason: "rejected by issuer"}

	res, err := f.service.InitiatePayment(context.Background(), 1, "req-1")
	require.NoError(t, err)
	assert.False(t, res.Success)

	order := f.store.orders[1]
	assert.Equal(t, 0, order.PaymentAttempts)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	assert.Empty(t, f.notifier.events)
}

func TestInitiatePayment_GatewayUnavailable(t *testing.T) {
	f := newFixture(t, true, submittedOrder(1))
	f.gateway.createRes = gateway.CreateOrderResult{Success: false, Reason: gateway.ReasonServiceUnavailable}

	res, err := f.service.InitiatePayment(context.Background(), 1, "req-1")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, gateway.ReasonServiceUnavailable, res.Reason)

	// An unreachable gateway must not burn an attempt
	order := f.store.orders[1]
	assert.Equal(t, 0, order.PaymentAttempts)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	assert.Empty(t, f.notifier.events)
	assert.Equal(t, []int{1}, f.locker.released)
}

func TestReconcile_ChargedMarksPaid(t *testing.T) {
	f := newFixture(t, true, pendingOrder(1, "ext-123"))
	details := json.RawMessage(`{"status":"charged"}`)
	f.gateway.statusRes = gateway.StatusResult{Success: true, Status: models.PaymentCharged, Details: details}

	res, err := f.service.Reconcile(context.Background(), 1, "req-1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.PaymentCharged, res.PaymentStatus)
	assert.Equal(t, []string{"ext-123"}, f.gateway.statusCalls)

	order := f.store.orders[1]
	assert.Equal(t, models.StatusPaid, order.Status)
	require.NotNil(t, order.PaymentCompletedAt)
	assert.Equal(t, details, order.PaymentDetails)

	assert.Equal(t, []models.EventType{models.EventOrderStatusChanged}, f.notifier.types())
}

func TestReconcile_StillPendingPublishesNothing(t *testing.T) {
	f := newFixture(t, true, pendingOrder(1, "ext-123"))
	f.gateway.statusRes = gateway.StatusResult{Success: true, Status: models.PaymentPending}

	res, err := f.service.Reconcile(context.Background(), 1, "req-1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.PaymentPending, res.PaymentStatus)
	assert.Equal(t, models.StatusPendingPayment, f.store.orders[1].Status)
	assert.Empty(t, f.notifier.events)
}

func TestReconcile_FailedPublishesPaymentFailed(t *testing.T) {
	f := newFixture(t, true, pendingOrder(1, "ext-123"))
	f.gateway.statusRes = gateway.StatusResult{Success: true, Status: models.PaymentFailed}

	res, err := f.service.Reconcile(context.Background(), 1, "req-1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.PaymentFailed, res.PaymentStatus)
	// One failed attempt of three leaves the order retryable
	assert.Equal(t, models.StatusPendingPayment, f.store.orders[1].Status)
	assert.Equal(t, []models.EventType{models.EventPaymentFailed}, f.notifier.types())
}

func TestReconcile_FailedAtCapCancels(t *testing.T) {
	order := pendingOrder(1, "ext-123")
	order.PaymentAttempts = models.MaxPaymentAttempts

	f := newFixture(t, true, order)
	f.gateway.statusRes = gateway.StatusResult{Success: true, Status: models.PaymentFailed}

	_, err := f.service.Reconcile(context.Background(), 1, "req-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCancelled, f.store.orders[1].Status)
	assert.Equal(t, []models.EventType{models.EventOrderStatusChanged, models.EventPaymentFailed}, f.notifier.types())
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t, true, pendingOrder(1, "ext-123"))
	f.gateway.statusRes = gateway.StatusResult{Success: true, Status: models.PaymentCharged}

	_, err := f.service.Reconcile(context.Background(), 1, "req-1")
	require.NoError(t, err)

	require.NotNil(t, f.store.orders[1].PaymentCompletedAt)
	completedAt := *f.store.orders[1].PaymentCompletedAt

	_, err = f.service.Reconcile(context.Background(), 1, "req-2")
	require.NoError(t, err)

	assert.Equal(t, models.StatusPaid, f.store.orders[1].Status)
	// The second pass saw no change, so only the first publishes and the
	// completion time stays where the first pass put it
	assert.Equal(t, completedAt, *f.store.orders[1].PaymentCompletedAt)
	assert.Equal(t, []models.EventType{models.EventOrderStatusChanged}, f.notifier.types())
}

func TestReconcile_NoExternalPayment(t *testing.T) {
	f := newFixture(t, true, submittedOrder(1))

	_, err := f.service.Reconcile(context.Background(), 1, "req-1")
	require.ErrorIs(t, err, ErrNoExternalPayment)
	assert.Empty(t, f.gateway.statusCalls)
}

func TestReconcile_GatewayUnavailable(t *testing.T) {
	f := newFixture(t, true, pendingOrder(1, "ext-123"))
	f.gateway.statusRes = gateway.StatusResult{Success: false, Reason: gateway.ReasonServiceUnavailable}

	res, err := f.service.Reconcile(context.Background(), 1, "req-1")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, gateway.ReasonServiceUnavailable, res.Reason)
	assert.Equal(t, models.StatusPendingPayment, f.store.orders[1].Status)
	assert.Empty(t, f.notifier.events)
}

func TestReconcileByExternalID(t *testing.T) {
	f := newFixture(t, true, pendingOrder(7, "ext-cb"))
	f.gateway.statusRes = gateway.StatusResult{Success: true, Status: models.PaymentCharged}

	res, err := f.service.ReconcileByExternalID(context.Background(), "ext-cb", "req-1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.StatusPaid, f.store.orders[7].Status)
}

func TestReconcileByExternalID_Unknown(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.service.ReconcileByExternalID(context.Background(), "ext-missing", "req-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweep(t *testing.T) {
	orders := []*models.Order{
		pendingOrder(1, "ext-1"),
		pendingOrder(2, "ext-2"),
		submittedOrder(3),
	}
	orders[1].Number = "ORD_20260815_002"

	f := newFixture(t, true, orders...)
	f.gateway.statusRes = gateway.StatusResult{Success: true, Status: models.PaymentCharged}

	err := f.service.Sweep(context.Background(), "req-sweep")
	require.NoError(t, err)

	assert.Len(t, f.gateway.statusCalls, 2)
	assert.Equal(t, models.StatusPaid, f.store.orders[1].Status)
	assert.Equal(t, models.StatusPaid, f.store.orders[2].Status)
	assert.Equal(t, models.StatusSubmitted, f.store.orders[3].Status)
}

func TestSweep_Empty(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.service.Sweep(context.Background(), "req-sweep"))
	assert.Empty(t, f.gateway.statusCalls)
}
