package mysql

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
WHERE day=? LIMIT 1;
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

// ReserveIfUnder is the one atomic check-then-increment. The row for the day
// is created on demand, then a single conditional UPDATE both checks the cap
// and charges the estimate; RowsAffected tells whether the reservation took.
// The check and the write happen inside one statement, so two concurrent
// callers can never both pass when only one fits under the limit.
func (r *BudgetRepository) ReserveIfUnder(ctx context.Context, day string, estimated, limit float64) (bool, error) {
	const ensure = `
INSERT IGNORE INTO usage_ledger (day, total_cost, total_tokens, request_count)
VALUES (?, 0, 0, 0);
`
	if _, err := r.db.ExecContext(ctx, ensure, day); err != nil {
		return false, err
	}

	const reserve = `
UPDATE usage_ledger
SET total_cost = total_cost + ?, request_count = request_count + 1
WHERE day = ? AND total_cost + ? <= ?;
`
	res, err := r.db.ExecContext(ctx, reserve, estimated, day, estimated, limit)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Adjust applies signed deltas (commit reconciliation, reservation release)
func (r *BudgetRepository) Adjust(ctx context.Context, day string, costDelta float64, tokenDelta int64, requestDelta int64) error {
	const q = `
UPDATE usage_ledger
SET total_cost = GREATEST(total_cost + ?, 0),
    total_tokens = GREATEST(total_tokens + ?, 0),
    request_count = GREATEST(request_count + ?, 0)
WHERE day = ?;
`
	_, err := r.db.ExecContext(ctx, q, costDelta, tokenDelta, requestDelta, day)
	return err
}
