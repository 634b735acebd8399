package postgres

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/codexray/malapi-catalog/internal/domain/budget"
)

type BudgetRepository struct {
	db *sql.DB
}

func NewBudgetRepository(db *sql.DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

func (r *BudgetRepository) Get(ctx context.Context, day string) (*domain.LedgerEntry, error) {
	const q = `
SELECT day, total_cost, total_tokens, request_count, updated_at
FROM usage_ledger
WHERE day=$1 LIMIT 1;
`
	var e domain.LedgerEntry
	err := r.db.QueryRowContext(ctx, q, day).Scan(&e.Day, &e.TotalCost, &e.TotalTokens, &e.RequestCount, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ReserveIfUnder does the whole check-and-charge in one statement: the upsert
// only applies when the new total stays under the limit, and RowsAffected
// reports whether it did.
func (r *BudgetRepository) ReserveIfUnder(ctx context.Context, day string, estimated, limit float64) (bool, error) {
	const q = `
INSERT INTO usage_ledger (day, total_cost, total_tokens, request_count)
VALUES ($1, $2, 0, 1)
ON CONFLICT (day) DO UPDATE
SET total_cost = usage_ledger.total_cost + EXCLUDED.total_cost,
    request_count = usage_ledger.request_count + 1
WHERE usage_ledger.total_cost + EXCLUDED.total_cost <= $3;
`
	if estimated > limit {
		// the insert arm has no WHERE guard, so reject oversized estimates
		// before touching a fresh day row
		return false, nil
	}
	res, err := r.db.ExecContext(ctx, q, day, estimated, limit)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *BudgetRepository) Adjust(ctx context.Context, day string, costDelta float64, tokenDelta int64, requestDelta int64) error {
	const q = `
UPDATE usage_ledger
SET total_cost = GREATEST(total_cost + $1, 0),
    total_tokens = GREATEST(total_tokens + $2, 0),
    request_count = GREATEST(request_count + $3, 0)
WHERE day = $4;
`
	_, err := r.db.ExecContext(ctx, q, costDelta, tokenDelta, requestDelta, day)
	return err
}
