package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gymvietai/payment/internal/domain"
	"github.com/jackc/pgx/v5"
)

// OrderRepository handles database operations for orders and their audit log.
type OrderRepository struct {
	db DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderSelect = `
	SELECT o.id, o.user_id, o.plan_id, p.name, p.duration, o.amount, o.status,
	       o.transaction_no, o.transaction_info, o.admin_note,
	       o.created_at, o.updated_at, o.completed_at
	FROM orders o
	JOIN subscription_plans p ON o.plan_id = p.id`

// Create inserts a new order. A taken id yields domain.ErrDuplicateOrderID.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	query := `
		INSERT INTO orders (id, user_id, plan_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		o.ID, o.UserID, o.PlanID, o.Amount, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateOrderID
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// FindByID returns an order with its plan name and duration, or nil when absent.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRow(ctx, orderSelect+` WHERE o.id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return o, nil
}

// ListByUser returns a user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	rows, err := r.db.Query(ctx, orderSelect+` WHERE o.user_id = $1 ORDER BY o.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

var errNotApplied = errors.New("transition not applied")

// Transition applies t as a single conditional update and appends its log
// entry in the same transaction. It returns false when the stored status is
// not one of t.From; nothing is written in that case. A missing order row
// yields domain.ErrOrderVanished.
func (r *OrderRepository) Transition(ctx context.Context, t domain.OrderTransition) (bool, error) {
	from := make([]string, len(t.From))
	for i, s := range t.From {
		from[i] = string(s)
	}

	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders
			SET status = $1,
			    transaction_no = COALESCE($2, transaction_no),
			    transaction_info = COALESCE($3, transaction_info),
			    admin_note = COALESCE($4, admin_note),
			    updated_at = NOW(),
			    completed_at = CASE WHEN $5 THEN NOW() ELSE completed_at END
			WHERE id = $6 AND status = ANY($7)
		`,
			string(t.To), t.TransactionNo, nullJSON(t.TransactionInfo), t.AdminNote,
			t.To == domain.OrderCompleted, t.OrderID, from,
		)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, t.OrderID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check order existence: %w", err)
			}
			if !exists {
				return domain.ErrOrderVanished
			}
			return errNotApplied
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO payment_logs (order_id, event_type, data) VALUES ($1, $2, $3)`,
			t.OrderID, string(t.Log.EventType), nullJSON(t.Log.Data),
		)
		if err != nil {
			return fmt.Errorf("failed to append payment log: %w", err)
		}
		return nil
	})

	if errors.Is(err, errNotApplied) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AppendLog writes a standalone audit entry without touching the order row.
func (r *OrderRepository) AppendLog(ctx context.Context, l domain.PaymentLog) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO payment_logs (order_id, event_type, data) VALUES ($1, $2, $3)`,
		l.OrderID, string(l.EventType), nullJSON(l.Data),
	)
	if err != nil {
		return fmt.Errorf("failed to append payment log: %w", err)
	}
	return nil
}

// ListLogs returns the audit trail of an order, oldest first.
func (r *OrderRepository) ListLogs(ctx context.Context, orderID string) ([]*domain.PaymentLog, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, order_id, event_type, data, created_at FROM payment_logs WHERE order_id = $1 ORDER BY created_at, id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.PaymentLog
	for rows.Next() {
		var l domain.PaymentLog
		var eventType string
		var data []byte
		if err := rows.Scan(&l.ID, &l.OrderID, &eventType, &data, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment log: %w", err)
		}
		l.EventType = domain.PaymentEvent(eventType)
		l.Data = data
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var status string
	var info []byte
	err := row.Scan(
		&o.ID, &o.UserID, &o.PlanID, &o.PlanName, &o.PlanDuration, &o.Amount, &status,
		&o.TransactionNo, &info, &o.AdminNote,
		&o.CreatedAt, &o.UpdatedAt, &o.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.TransactionInfo = info
	return &o, nil
}

// nullJSON maps an empty payload to SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
