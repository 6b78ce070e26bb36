package repository

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/gymvietai/payment/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func completeTransition() domain.OrderTransition {
	txn := "14226112"
	payload := json.RawMessage(`{"vnp_ResponseCode":"00"}`)
	return domain.OrderTransition{
		OrderID:         "ORDER_1",
		From:            []domain.OrderStatus{domain.OrderPending},
		To:              domain.OrderCompleted,
		TransactionNo:   &txn,
		TransactionInfo: payload,
		Log: domain.PaymentLog{
			OrderID:   "ORDER_1",
			EventType: domain.EventIPNSuccess,
			Data:      payload,
		},
	}
}

func completeArgs() []any {
	tr := completeTransition()
	return []any{"completed", tr.TransactionNo, `{"vnp_ResponseCode":"00"}`, (*string)(nil), true, "ORDER_1", []string{"pending"}}
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestTransition_AppliesUpdateAndLogInOneTx(t *testing.T) {
	mock := setupMock(t)
	repo := NewOrderRepository(mock)
	tr := completeTransition()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders`)).
		WithArgs("completed", tr.TransactionNo, `{"vnp_ResponseCode":"00"}`, (*string)(nil), true, "ORDER_1", []string{"pending"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO payment_logs`)).
		WithArgs("ORDER_1", "ipn_success", `{"vnp_ResponseCode":"00"}`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	applied, err := repo.Transition(context.Background(), tr)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransition_StaleStatusWritesNothing(t *testing.T) {
	mock := setupMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders`)).
		WithArgs(completeArgs()...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("ORDER_1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	applied, err := repo.Transition(context.Background(), completeTransition())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransition_VanishedOrderFails(t *testing.T) {
	mock := setupMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders`)).
		WithArgs(completeArgs()...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("ORDER_1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	applied, err := repo.Transition(context.Background(), completeTransition())
	assert.ErrorIs(t, err, domain.ErrOrderVanished)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransition_LogFailureRollsBack(t *testing.T) {
	mock := setupMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders`)).
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO payment_logs`)).
		WithArgs(anyArgs(3)...).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	applied, err := repo.Transition(context.Background(), completeTransition())
	assert.Error(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransition_CancelKeepsGatewayFields(t *testing.T) {
	mock := setupMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`transaction_no = COALESCE($2, transaction_no)`)).
		WithArgs("cancelled", (*string)(nil), nil, (*string)(nil), false, "ORDER_1", []string{"pending"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO payment_logs`)).
		WithArgs("ORDER_1", "payment_cancelled", nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	applied, err := repo.Transition(context.Background(), domain.OrderTransition{
		OrderID: "ORDER_1",
		From:    []domain.OrderStatus{domain.OrderPending},
		To:      domain.OrderCancelled,
		Log:     domain.PaymentLog{OrderID: "ORDER_1", EventType: domain.EventPaymentCancelled},
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DuplicateID(t *testing.T) {
	mock := setupMock(t)
	repo := NewOrderRepository(mock)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orders`)).
		WithArgs("ORDER_1", "u1", "vip-1", int64(500000), "pending", now, now).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &domain.Order{
		ID: "ORDER_1", UserID: "u1", PlanID: "vip-1", Amount: 500000,
		Status: domain.OrderPending, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateOrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByID(t *testing.T) {
	mock := setupMock(t)
	repo := NewOrderRepository(mock)
	now := time.Now()

	cols := []string{"id", "user_id", "plan_id", "name", "duration", "amount", "status",
		"transaction_no", "transaction_info", "admin_note", "created_at", "updated_at", "completed_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM orders o`)).
		WithArgs("ORDER_1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"ORDER_1", "u1", "vip-1", "VIP", 1, int64(500000), "pending",
			(*string)(nil), []byte(nil), (*string)(nil), now, now, (*time.Time)(nil),
		))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM orders o`)).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(cols))

	o, err := repo.FindByID(context.Background(), "ORDER_1")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, "VIP", o.PlanName)
	assert.Equal(t, int64(500000), o.Amount)

	o, err = repo.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, o)
	assert.NoError(t, mock.ExpectationsWereMet())
}
