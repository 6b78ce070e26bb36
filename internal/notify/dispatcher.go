package notify

import (
	"context"
	"sync"
	"time"

	"github.com/gymvietai/payment/internal/domain"
	"go.uber.org/zap"
)

// PlanLookup resolves the purchased plan of a settled order.
type PlanLookup interface {
	FindByID(ctx context.Context, id string) (*domain.Plan, error)
}

// UserLookup resolves the buyer, for the notification email.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// RoleUpgrader grants a role in the auth service.
type RoleUpgrader interface {
	UpgradeRole(ctx context.Context, userID, role string) error
}

// SubscriptionExtender records the purchased subscription window on the user.
type SubscriptionExtender interface {
	ExtendSubscription(ctx context.Context, userID, planID string, months int) error
}

// Mailer sends payment notification emails.
type Mailer interface {
	SendSuccess(ctx context.Context, to string, mail PaymentMail) error
	SendFailure(ctx context.Context, to string, mail PaymentMail) error
}

// EventPublisher publishes settled-payment events.
type EventPublisher interface {
	Publish(ctx context.Context, event PaymentEvent) error
}

// Dispatcher runs fulfillment steps in the background after an order
// settles. Each step is attempted once under the shared timeout; failures
// are logged and never retried.
type Dispatcher struct {
	plans   PlanLookup
	users   UserLookup
	roles   RoleUpgrader
	subs    SubscriptionExtender
	mail    Mailer
	events  EventPublisher
	log     *zap.Logger
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// DispatcherOption customises a Dispatcher. Steps whose collaborator is not
// configured are skipped.
type DispatcherOption func(*Dispatcher)

func WithPlans(p PlanLookup) DispatcherOption {
	return func(d *Dispatcher) { d.plans = p }
}

func WithUsers(u UserLookup) DispatcherOption {
	return func(d *Dispatcher) { d.users = u }
}

func WithRoleUpgrader(r RoleUpgrader) DispatcherOption {
	return func(d *Dispatcher) { d.roles = r }
}

func WithSubscriptions(s SubscriptionExtender) DispatcherOption {
	return func(d *Dispatcher) { d.subs = s }
}

func WithMailer(m Mailer) DispatcherOption {
	return func(d *Dispatcher) { d.mail = m }
}

func WithEvents(p EventPublisher) DispatcherOption {
	return func(d *Dispatcher) { d.events = p }
}

// NewDispatcher creates a Dispatcher whose tasks each run under timeout.
func NewDispatcher(logger *zap.Logger, timeout time.Duration, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		log:     logger.Named("fulfillment"),
		timeout: timeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PaymentSucceeded upgrades the role, extends the subscription, sends the
// confirmation email and publishes payment.completed.
func (d *Dispatcher) PaymentSucceeded(ctx context.Context, outcome domain.PaymentOutcome) {
	d.dispatch(ctx, outcome, func(ctx context.Context, outcome domain.PaymentOutcome) {
		order := outcome.Order
		plan := planOf(outcome)

		if d.roles != nil {
			d.step(ctx, "upgrade_role", order.ID, func() error {
				return d.roles.UpgradeRole(ctx, order.UserID, plan.GrantedRole())
			})
		}
		if d.subs != nil && plan.Duration > 0 {
			d.step(ctx, "extend_subscription", order.ID, func() error {
				return d.subs.ExtendSubscription(ctx, order.UserID, plan.ID, plan.Duration)
			})
		}
		if d.mail != nil && outcome.User != nil && outcome.User.Email != "" {
			d.step(ctx, "success_email", order.ID, func() error {
				return d.mail.SendSuccess(ctx, outcome.User.Email, PaymentMail{
					OrderID:  order.ID,
					PlanName: plan.Name,
					Amount:   order.Amount,
				})
			})
		}
		d.publish(ctx, EventPaymentCompleted, outcome)
	})
}

// PaymentFailed sends the failure email and publishes payment.failed.
func (d *Dispatcher) PaymentFailed(ctx context.Context, outcome domain.PaymentOutcome) {
	d.dispatch(ctx, outcome, func(ctx context.Context, outcome domain.PaymentOutcome) {
		order := outcome.Order
		if d.mail != nil && outcome.User != nil && outcome.User.Email != "" {
			d.step(ctx, "failure_email", order.ID, func() error {
				return d.mail.SendFailure(ctx, outcome.User.Email, PaymentMail{
					OrderID:  order.ID,
					PlanName: planOf(outcome).Name,
					Amount:   order.Amount,
					Reason:   FailureReason(outcome.ResponseCode),
				})
			})
		}
		d.publish(ctx, EventPaymentFailed, outcome)
	})
}

// Close stops accepting work and waits for running tasks until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) dispatch(parent context.Context, outcome domain.PaymentOutcome, task func(context.Context, domain.PaymentOutcome)) {
	if outcome.Order == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("dispatcher closed, fulfillment dropped", zap.String("order_id", outcome.Order.ID))
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("fulfillment panicked", zap.String("order_id", outcome.Order.ID), zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
		defer cancel()
		task(ctx, d.resolve(ctx, outcome))
	}()
}

// resolve fills in the plan and user the steps need. Lookup failures are
// logged; the steps fall back to the order's own plan fields.
func (d *Dispatcher) resolve(ctx context.Context, outcome domain.PaymentOutcome) domain.PaymentOutcome {
	order := outcome.Order
	if outcome.Plan == nil && d.plans != nil {
		plan, err := d.plans.FindByID(ctx, order.PlanID)
		if err != nil {
			d.log.Warn("fulfillment plan lookup failed", zap.String("order_id", order.ID), zap.Error(err))
		}
		outcome.Plan = plan
	}
	if outcome.User == nil && d.users != nil {
		user, err := d.users.FindByID(ctx, order.UserID)
		if err != nil {
			d.log.Warn("fulfillment user lookup failed", zap.String("order_id", order.ID), zap.Error(err))
		}
		outcome.User = user
	}
	return outcome
}

func (d *Dispatcher) step(ctx context.Context, op, orderID string, fn func() error) {
	start := time.Now()
	if err := fn(); err != nil {
		dErr := &DownstreamError{Op: op, Err: err}
		d.log.Error("fulfillment step failed",
			zap.String("order_id", orderID),
			zap.String("op", op),
			zap.Error(dErr),
			zap.Bool("timed_out", ctx.Err() != nil),
		)
		return
	}
	d.log.Info("fulfillment step done",
		zap.String("order_id", orderID),
		zap.String("op", op),
		zap.Duration("latency", time.Since(start)),
	)
}

func (d *Dispatcher) publish(ctx context.Context, eventType string, outcome domain.PaymentOutcome) {
	if d.events == nil {
		return
	}
	order := outcome.Order
	event := PaymentEvent{
		Type:         eventType,
		OrderID:      order.ID,
		UserID:       order.UserID,
		PlanID:       order.PlanID,
		Amount:       order.Amount,
		Channel:      string(outcome.Channel),
		ResponseCode: outcome.ResponseCode,
		OccurredAt:   d.now().UTC(),
	}
	if order.TransactionNo != nil {
		event.TransactionNo = *order.TransactionNo
	}
	d.step(ctx, "publish_"+eventType, order.ID, func() error {
		return d.events.Publish(ctx, event)
	})
}

// planOf falls back to the plan fields joined onto the order when the plan
// lookup failed.
func planOf(outcome domain.PaymentOutcome) *domain.Plan {
	if outcome.Plan != nil {
		return outcome.Plan
	}
	return &domain.Plan{
		ID:       outcome.Order.PlanID,
		Name:     outcome.Order.PlanName,
		Duration: outcome.Order.PlanDuration,
	}
}
