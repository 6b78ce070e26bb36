package notify

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gymvietai/payment/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	block chan struct{}
}

func (r *recorder) record(call string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.fail[call]
}

func (r *recorder) UpgradeRole(_ context.Context, userID, role string) error {
	return r.record("role:" + userID + ":" + role)
}

func (r *recorder) ExtendSubscription(_ context.Context, userID, planID string, months int) error {
	return r.record("extend:" + userID + ":" + planID + ":" + strconv.Itoa(months))
}

func (r *recorder) SendSuccess(_ context.Context, to string, mail PaymentMail) error {
	return r.record("success_mail:" + to + ":" + mail.PlanName)
}

func (r *recorder) SendFailure(_ context.Context, to string, mail PaymentMail) error {
	return r.record("failure_mail:" + to + ":" + mail.Reason)
}

func (r *recorder) Publish(_ context.Context, event PaymentEvent) error {
	return r.record("event:" + event.Type + ":" + event.Channel)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestDispatcher(r *recorder, logger *zap.Logger) *Dispatcher {
	return NewDispatcher(logger, time.Second,
		WithRoleUpgrader(r),
		WithSubscriptions(r),
		WithMailer(r),
		WithEvents(r),
	)
}

func vipOutcome() domain.PaymentOutcome {
	return domain.PaymentOutcome{
		Order:        &domain.Order{ID: "ORDER_1", UserID: "user-1", PlanID: "vip", PlanName: "VIP", Amount: 1200000},
		Plan:         &domain.Plan{ID: "vip", Name: "VIP", Duration: 3},
		User:         &domain.User{ID: "user-1", Email: "a@example.com"},
		Channel:      domain.ChannelIPN,
		ResponseCode: "00",
	}
}

func TestDispatcher_PaymentSucceeded(t *testing.T) {
	r := &recorder{}
	d := newTestDispatcher(r, zap.NewNop())

	d.PaymentSucceeded(context.Background(), vipOutcome())
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, []string{
		"role:user-1:user_vip",
		"extend:user-1:vip:3",
		"success_mail:a@example.com:VIP",
		"event:payment.completed:ipn",
	}, r.snapshot())
}

func TestDispatcher_PaymentFailed(t *testing.T) {
	r := &recorder{}
	d := newTestDispatcher(r, zap.NewNop())

	outcome := vipOutcome()
	outcome.ResponseCode = "24"
	d.PaymentFailed(context.Background(), outcome)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, []string{
		"failure_mail:a@example.com:24 - Khách hàng hủy giao dịch",
		"event:payment.failed:ipn",
	}, r.snapshot())
}

func TestDispatcher_StepFailureDoesNotStopOthers(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := &recorder{fail: map[string]error{"role:user-1:user_vip": errors.New("connection refused")}}
	d := newTestDispatcher(r, zap.New(core))

	d.PaymentSucceeded(context.Background(), vipOutcome())
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, r.snapshot(), 4)
	entries := logs.FilterMessage("fulfillment step failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "upgrade_role", entries[0].ContextMap()["op"])
}

func TestDispatcher_FallsBackToOrderPlanFields(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(zap.NewNop(), time.Second, WithRoleUpgrader(r), WithSubscriptions(r))

	outcome := vipOutcome()
	outcome.Plan = nil
	outcome.Order.PlanName = "Premium"
	outcome.Order.PlanDuration = 1
	d.PaymentSucceeded(context.Background(), outcome)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, []string{"role:user-1:user_premium", "extend:user-1:vip:1"}, r.snapshot())
}

func TestDispatcher_SkipsMailWithoutRecipient(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(zap.NewNop(), time.Second, WithMailer(r))

	outcome := vipOutcome()
	outcome.User = nil
	d.PaymentSucceeded(context.Background(), outcome)
	require.NoError(t, d.Close(context.Background()))
	assert.Empty(t, r.snapshot())
}

func TestDispatcher_ReturnsImmediatelyAndSurvivesCallerCancel(t *testing.T) {
	r := &recorder{block: make(chan struct{})}
	d := NewDispatcher(zap.NewNop(), time.Second, WithEvents(r))

	ctx, cancel := context.WithCancel(context.Background())
	d.PaymentSucceeded(ctx, vipOutcome())
	cancel()
	assert.Empty(t, r.snapshot())

	close(r.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"event:payment.completed:ipn"}, r.snapshot())
}

func TestDispatcher_CloseDropsNewWorkAndHonoursDeadline(t *testing.T) {
	r := &recorder{block: make(chan struct{})}
	d := NewDispatcher(zap.NewNop(), time.Second, WithEvents(r))
	d.PaymentSucceeded(context.Background(), vipOutcome())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	d.PaymentFailed(context.Background(), vipOutcome())
	close(r.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"event:payment.completed:ipn"}, r.snapshot())
}

type planLookup map[string]*domain.Plan

func (p planLookup) FindByID(_ context.Context, id string) (*domain.Plan, error) {
	return p[id], nil
}

type userLookup struct {
	users map[string]*domain.User
	err   error
}

func (u userLookup) FindByID(_ context.Context, id string) (*domain.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	return u.users[id], nil
}

func TestDispatcher_ResolvesPlanAndUserInBackground(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(zap.NewNop(), time.Second,
		WithPlans(planLookup{"vip": {ID: "vip", Name: "VIP", Duration: 3}}),
		WithUsers(userLookup{users: map[string]*domain.User{"user-1": {ID: "user-1", Email: "a@example.com"}}}),
		WithRoleUpgrader(r),
		WithSubscriptions(r),
		WithMailer(r),
	)

	outcome := vipOutcome()
	outcome.Plan = nil
	outcome.User = nil
	outcome.Order.PlanName = ""
	d.PaymentSucceeded(context.Background(), outcome)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, []string{
		"role:user-1:user_vip",
		"extend:user-1:vip:3",
		"success_mail:a@example.com:VIP",
	}, r.snapshot())
}

func TestDispatcher_UserLookupFailureSkipsMail(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := &recorder{}
	d := NewDispatcher(zap.New(core), time.Second,
		WithUsers(userLookup{err: errors.New("auth db down")}),
		WithMailer(r),
		WithEvents(r),
	)

	outcome := vipOutcome()
	outcome.User = nil
	d.PaymentFailed(context.Background(), outcome)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, []string{"event:payment.failed:ipn"}, r.snapshot())
	assert.Equal(t, 1, logs.FilterMessage("fulfillment user lookup failed").Len())
}
