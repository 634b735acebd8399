package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/codexray/malapi-catalog/internal/domain/budget"
)

// memLedger mirrors the SQL repository's semantics: ReserveIfUnder is a
// single atomic check-and-increment per day row.
type memLedger struct {
	mu   sync.Mutex
	rows map[string]*domain.LedgerEntry
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[string]*domain.LedgerEntry)}
}

func (l *memLedger) row(day string) *domain.LedgerEntry {
	e, ok := l.rows[day]
	if !ok {
		e = &domain.LedgerEntry{Day: day}
		l.rows[day] = e
	}
	return e
}

func (l *memLedger) Get(ctx context.Context, day string) (*domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.rows[day]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (l *memLedger) ReserveIfUnder(ctx context.Context, day string, estimated, limit float64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.row(day)
	if e.TotalCost+estimated > limit {
		return false, nil
	}
	e.TotalCost += estimated
	e.RequestCount++
	return true, nil
}

func (l *memLedger) Adjust(ctx context.Context, day string, costDelta float64, tokenDelta int64, requestDelta int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.row(day)
	e.TotalCost += costDelta
	if e.TotalCost < 0 {
		e.TotalCost = 0
	}
	e.TotalTokens += tokenDelta
	e.RequestCount += requestDelta
	if e.RequestCount < 0 {
		e.RequestCount = 0
	}
	return nil
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func newTestService(ledger *memLedger, budget float64) (*Service, *fixedClock) {
	clock := &fixedClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	return NewService(ledger, budget, time.UTC, clock), clock
}

func TestCheckAndReserveWithinBudget(t *testing.T) {
	ledger := newMemLedger()
	svc, _ := newTestService(ledger, 5.00)

	res, err := svc.CheckAndReserve(context.Background(), 0.06)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "2025-06-15", res.Day)
	assert.Equal(t, 0.06, res.Estimated)

	today, err := svc.Today(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.06, today.TotalCost, 1e-9)
	assert.Equal(t, int64(1), today.RequestCount)
}

func TestCheckAndReserveExceededChargesNothing(t *testing.T) {
	ledger := newMemLedger()
	svc, _ := newTestService(ledger, 0.10)

	_, err := svc.CheckAndReserve(context.Background(), 0.06)
	require.NoError(t, err)

	_, err = svc.CheckAndReserve(context.Background(), 0.06)
	assert.ErrorIs(t, err, domain.ErrExceeded)

	today, err := svc.Today(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.06, today.TotalCost, 1e-9)
	assert.Equal(t, int64(1), today.RequestCount)
}

func TestZeroBudgetRejectsFirstRequest(t *testing.T) {
	ledger := newMemLedger()
	svc, _ := newTestService(ledger, 0)

	_, err := svc.CheckAndReserve(context.Background(), 0.06)
	assert.ErrorIs(t, err, domain.ErrExceeded)
	assert.Empty(t, ledger.rows["2025-06-15"].TotalCost)
}

func TestCommitReconcilesToActualCost(t *testing.T) {
	ledger := newMemLedger()
	svc, _ := newTestService(ledger, 5.00)
	ctx := context.Background()

	res, err := svc.CheckAndReserve(ctx, 0.06)
	require.NoError(t, err)
	require.NoError(t, svc.Commit(ctx, res, 0.01, 350))

	today, err := svc.Today(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, today.TotalCost, 1e-9)
	assert.Equal(t, int64(350), today.TotalTokens)
	assert.Equal(t, int64(1), today.RequestCount)
}

func TestReleaseBacksOutReservation(t *testing.T) {
	ledger := newMemLedger()
	svc, _ := newTestService(ledger, 5.00)
	ctx := context.Background()

	res, err := svc.CheckAndReserve(ctx, 0.06)
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, res))

	today, err := svc.Today(ctx)
	require.NoError(t, err)
	assert.Zero(t, today.TotalCost)
	assert.Zero(t, today.TotalTokens)
	assert.Zero(t, today.RequestCount)
}

func TestReservationsRollOverAtMidnight(t *testing.T) {
	ledger := newMemLedger()
	svc, clock := newTestService(ledger, 0.10)
	ctx := context.Background()

	_, err := svc.CheckAndReserve(ctx, 0.10)
	require.NoError(t, err)
	_, err = svc.CheckAndReserve(ctx, 0.10)
	require.ErrorIs(t, err, domain.ErrExceeded)

	clock.t = clock.t.Add(24 * time.Hour)
	res, err := svc.CheckAndReserve(ctx, 0.10)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-16", res.Day)
}

func TestTodayWithoutSpendIsZeroValued(t *testing.T) {
	svc, _ := newTestService(newMemLedger(), 5.00)

	today, err := svc.Today(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15", today.Day)
	assert.Zero(t, today.TotalCost)
}

func TestConcurrentReservationsHoldTheCap(t *testing.T) {
	ledger := newMemLedger()
	// room for exactly 4 reservations of 0.25
	svc, _ := newTestService(ledger, 1.00)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	granted := make(chan domain.Reservation, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, err := svc.CheckAndReserve(ctx, 0.25); err == nil {
				granted <- res
			}
		}()
	}
	wg.Wait()
	close(granted)

	var n int
	for range granted {
		n++
	}
	assert.Equal(t, 4, n)

	today, err := svc.Today(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.00, today.TotalCost, 1e-9)
	assert.Equal(t, int64(4), today.RequestCount)
}
