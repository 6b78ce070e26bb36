package service

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gymvietai/payment/internal/domain"
	"github.com/gymvietai/payment/pkg/payment"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "SECRETKEY"

var baseTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memPlans struct {
	plans map[string]*domain.Plan
	err   error
}

func (m *memPlans) FindByID(_ context.Context, id string) (*domain.Plan, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPlans) ListActive(_ context.Context) ([]*domain.Plan, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Plan
	for _, p := range m.plans {
		if p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memUsers struct {
	users map[string]*domain.User
}

func (m *memUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// memOrders mirrors the conditional update the Postgres repository runs.
type memOrders struct {
	mu        sync.Mutex
	clock     *clock
	orders    map[string]*domain.Order
	logs      []*domain.PaymentLog
	createErr []error
	findErr   error
	txErr     error
	appendErr error
}

func newMemOrders(c *clock) *memOrders {
	return &memOrders{clock: c, orders: map[string]*domain.Order{}}
}

func (m *memOrders) Create(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		return err
	}
	if _, ok := m.orders[o.ID]; ok {
		return domain.ErrDuplicateOrderID
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrders) FindByID(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListByUser(_ context.Context, userID string) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memOrders) Transition(_ context.Context, t domain.OrderTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.txErr != nil {
		return false, m.txErr
	}
	o, ok := m.orders[t.OrderID]
	if !ok {
		return false, domain.ErrOrderVanished
	}
	matched := false
	for _, s := range t.From {
		if o.Status == s {
			matched = true
		}
	}
	if !matched {
		return false, nil
	}
	now := m.clock.Now()
	o.Status = t.To
	if t.TransactionNo != nil {
		o.TransactionNo = t.TransactionNo
	}
	if t.TransactionInfo != nil {
		o.TransactionInfo = t.TransactionInfo
	}
	if t.AdminNote != nil {
		o.AdminNote = t.AdminNote
	}
	o.UpdatedAt = now
	if t.To == domain.OrderCompleted {
		o.CompletedAt = &now
	}
	l := t.Log
	l.ID = int64(len(m.logs) + 1)
	l.CreatedAt = now
	m.logs = append(m.logs, &l)
	return true, nil
}

func (m *memOrders) AppendLog(_ context.Context, l domain.PaymentLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	l.ID = int64(len(m.logs) + 1)
	l.CreatedAt = m.clock.Now()
	m.logs = append(m.logs, &l)
	return nil
}

func (m *memOrders) ListLogs(_ context.Context, orderID string) ([]*domain.PaymentLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PaymentLog
	for _, l := range m.logs {
		if l.OrderID == orderID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memOrders) status(id string) domain.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

func (m *memOrders) events(id string) []domain.PaymentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PaymentEvent
	for _, l := range m.logs {
		if l.OrderID == id {
			out = append(out, l.EventType)
		}
	}
	return out
}

type recordingFulfiller struct {
	mu        sync.Mutex
	succeeded []domain.PaymentOutcome
	failed    []domain.PaymentOutcome
}

func (r *recordingFulfiller) PaymentSucceeded(_ context.Context, o domain.PaymentOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded = append(r.succeeded, o)
}

func (r *recordingFulfiller) PaymentFailed(_ context.Context, o domain.PaymentOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, o)
}

func (r *recordingFulfiller) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.succeeded), len(r.failed)
}

type fixture struct {
	clock     *clock
	plans     *memPlans
	users     *memUsers
	orders    *memOrders
	gateway   *payment.Gateway
	fulfiller *recordingFulfiller
	orderSvc  *OrderService
	callbacks *CallbackService
}

func newFixture(t *testing.T, returnAdvisory bool) *fixture {
	t.Helper()
	c := &clock{now: baseTime}
	gw, err := payment.NewGateway(payment.Config{
		TmnCode:    "DEMO1234",
		HashSecret: testSecret,
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "http://localhost:3004/api/payment/vnpay_return",
	}, payment.WithClock(c.Now))
	require.NoError(t, err)

	f := &fixture{
		clock: c,
		plans: &memPlans{plans: map[string]*domain.Plan{
			"premium": {ID: "premium", Name: "Premium", Price: 500000, Duration: 1, IsActive: true},
			"vip":     {ID: "vip", Name: "VIP", Price: 1200000, Duration: 3, IsActive: true},
			"retired": {ID: "retired", Name: "Legacy", Price: 100000, Duration: 1, IsActive: false},
			"huge":    {ID: "huge", Name: "Corporate", Price: domain.MaxOrderAmount + 1, Duration: 12, IsActive: true},
		}},
		users: &memUsers{users: map[string]*domain.User{
			"user-1": {ID: "user-1", Email: "a@example.com", Role: "user"},
			"user-2": {ID: "user-2", Email: "b@example.com", Role: "user"},
		}},
		orders:    newMemOrders(c),
		gateway:   gw,
		fulfiller: &recordingFulfiller{},
	}
	logger := zap.NewNop()
	f.orderSvc = NewOrderService(f.plans, f.orders, f.users, gw, logger, WithOrderClock(c.Now))
	f.callbacks = NewCallbackService(f.orderSvc, gw.Signer(), f.fulfiller, logger, returnAdvisory)
	return f
}

// createOrder opens a pending order for user-1 on the premium plan.
func (f *fixture) createOrder(t *testing.T) *domain.CheckoutResponse {
	t.Helper()
	res, err := f.orderSvc.Create(context.Background(), "user-1", &domain.CreateOrderRequest{PlanID: "premium"}, "10.0.0.1")
	require.NoError(t, err)
	return res
}

// signedCallback builds gateway callback values signed with the test secret.
func signedCallback(orderID string, amount int64, code string) url.Values {
	fields := map[string]string{
		payment.FieldTmnCode:       "DEMO1234",
		payment.FieldTxnRef:        orderID,
		payment.FieldAmount:        strconv.FormatInt(amount*payment.AmountScale, 10),
		payment.FieldResponseCode:  code,
		payment.FieldTransactionNo: "14226112",
		payment.FieldBankCode:      "NCB",
		payment.FieldPayDate:       "20240601101500",
		payment.FieldOrderInfo:     "Thanh toan goi Premium",
	}
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	return resign(values)
}

// resign replaces the secure hash after a test has edited signed fields.
func resign(values url.Values) url.Values {
	values.Del(payment.FieldSecureHash)
	signer, _ := payment.NewSigner(testSecret)
	values.Set(payment.FieldSecureHash, signer.Sign(payment.FromValues(values)))
	return values
}
