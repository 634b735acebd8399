package budget

import "context"

// Repository port. ReserveIfUnder is the single atomic check-then-increment:
// it must add estimated to the day's total_cost only when the new total stays
// within limit, as one operation on the row (conditional UPDATE, CAS loop or
// equivalent), and report whether the reservation took effect. A successful
// reserve also bumps request_count. Two concurrent callers must never both
// pass when only one fits.
type Repository interface {
	Get(ctx context.Context, day string) (*LedgerEntry, error)
	ReserveIfUnder(ctx context.Context, day string, estimated, limit float64) (bool, error)
	// Adjust applies a signed delta to a day's totals (commit reconciliation
	// and reservation release).
	Adjust(ctx context.Context, day string, costDelta float64, tokenDelta int64, requestDelta int64) error
}
