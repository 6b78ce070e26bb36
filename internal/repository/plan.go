package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gymvietai/payment/internal/domain"
	"github.com/jackc/pgx/v5"
)

// PlanRepository reads the subscription plan catalog.
type PlanRepository struct {
	db DB
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, name, description, price, duration, features, is_active`

// FindByID returns a plan by ID, or nil when it does not exist.
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*domain.Plan, error) {
	row := r.db.QueryRow(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, id)
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	return p, nil
}

// ListActive returns active plans ordered by price.
func (r *PlanRepository) ListActive(ctx context.Context) ([]*domain.Plan, error) {
	rows, err := r.db.Query(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE is_active = TRUE ORDER BY price ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*domain.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	var p domain.Plan
	var features []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Duration, &features, &p.IsActive); err != nil {
		return nil, err
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &p.Features); err != nil {
			return nil, fmt.Errorf("invalid features for plan %s: %w", p.ID, err)
		}
	}
	return &p, nil
}
