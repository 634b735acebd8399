package analysis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appbudget "github.com/codexray/malapi-catalog/internal/application/budget"
	domain "github.com/codexray/malapi-catalog/internal/domain/analysis"
	budgetdomain "github.com/codexray/malapi-catalog/internal/domain/budget"
	"github.com/codexray/malapi-catalog/internal/domain/functions"
)

type memCache struct {
	mu        sync.Mutex
	entries   map[domain.Key]*domain.CacheEntry
	upsertErr error
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[domain.Key]*domain.CacheEntry)}
}

func (c *memCache) Get(ctx context.Context, key domain.Key) (*domain.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (c *memCache) Upsert(ctx context.Context, e *domain.CacheEntry) error {
	if c.upsertErr != nil {
		return c.upsertErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *e
	c.entries[e.Key] = &cp
	return nil
}

type fakeProvider struct {
	mu       sync.Mutex
	calls    int32
	failures int // fail this many calls before succeeding
	delay    time.Duration
	lastSrc  string
	tokens   int
}

func (p *fakeProvider) Analyze(ctx context.Context, sourceCode string, analysisType domain.Type, model string, temperature float32) (domain.ProviderResult, error) {
	n := atomic.AddInt32(&p.calls, 1)
	p.mu.Lock()
	p.lastSrc = sourceCode
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.ProviderResult{}, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if int(n) <= p.failures {
		return domain.ProviderResult{}, errors.New("upstream unavailable")
	}
	tokens := p.tokens
	if tokens == 0 {
		tokens = 350
	}
	return domain.ProviderResult{ResultText: "This function injects a payload.", TokenUsage: tokens}, nil
}

type memLedger struct {
	mu   sync.Mutex
	rows map[string]*budgetdomain.LedgerEntry
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[string]*budgetdomain.LedgerEntry)}
}

func (l *memLedger) row(day string) *budgetdomain.LedgerEntry {
	e, ok := l.rows[day]
	if !ok {
		e = &budgetdomain.LedgerEntry{Day: day}
		l.rows[day] = e
	}
	return e
}

func (l *memLedger) Get(ctx context.Context, day string) (*budgetdomain.LedgerEntry, error) {
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
	return nil
}

type fnRepo struct {
	fn *functions.Function
}

func (r *fnRepo) Get(ctx context.Context, id int64) (*functions.Function, error) {
	if r.fn == nil || r.fn.ID != id {
		return nil, functions.ErrNotFound
	}
	return r.fn, nil
}

func (r *fnRepo) Paginate(ctx context.Context, page, pageSize int) (functions.PaginatedResult, error) {
	return functions.PaginatedResult{}, nil
}

func (r *fnRepo) Delete(ctx context.Context, id int64) error { return nil }

type srcStore struct {
	objects map[string]string
}

func (s *srcStore) Fetch(ctx context.Context, key string) (string, error) {
	body, ok := s.objects[key]
	if !ok {
		return "", errors.New("object not found")
	}
	return body, nil
}

func (s *srcStore) Upload(ctx context.Context, key string, body string) error { return nil }

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc      *Service
	cache    *memCache
	provider *fakeProvider
	ledger   *memLedger
	clock    *fixedClock
}

func newFixture(dailyBudget float64) *fixture {
	clock := &fixedClock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	cache := newMemCache()
	provider := &fakeProvider{}
	ledger := newMemLedger()
	budget := appbudget.NewService(ledger, dailyBudget, time.UTC, clock)
	repo := &fnRepo{fn: &functions.Function{
		ID:      1,
		HashID:  "a1b2c3",
		Alias:   "inject_payload",
		Summary: "void inject_payload() { /* ... */ }",
		Status:  functions.StatusOK,
	}}
	svc := NewService(cache, provider, budget, repo, &srcStore{objects: map[string]string{}}, clock, Options{
		RetryBackoff: time.Millisecond,
	})
	return &fixture{svc: svc, cache: cache, provider: provider, ledger: ledger, clock: clock}
}

func (f *fixture) spentToday() *budgetdomain.LedgerEntry {
	e, _ := f.ledger.Get(context.Background(), "2025-06-15")
	if e == nil {
		e = &budgetdomain.LedgerEntry{}
	}
	return e
}

func TestGetOrComputeMissThenHit(t *testing.T) {
	f := newFixture(5.00)
	ctx := context.Background()

	res, err := f.svc.GetOrCompute(ctx, 1, domain.TypeCodeExplanation, "", 0)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, "gpt-4", res.Key.Model)
	assert.Equal(t, 350, res.TokenUsage)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.provider.calls))

	// actual cost, not the estimate, is what stays on the ledger
	spent := f.spentToday()
	assert.InDelta(t, 350*0.00003, spent.TotalCost, 1e-9)
	assert.Equal(t, int64(350), spent.TotalTokens)

	res, err = f.svc.GetOrCompute(ctx, 1, domain.TypeCodeExplanation, "", 0)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.provider.calls), "cache hit must not call the provider")
	assert.InDelta(t, 350*0.00003, f.spentToday().TotalCost, 1e-9, "cache hit must not touch the ledger")
}

func TestGetOrComputeZeroBudget(t *testing.T) {
	f := newFixture(0)

	_, err := f.svc.GetOrCompute(context.Background(), 1, domain.TypeCodeExplanation, "", 0)
	assert.ErrorIs(t, err, budgetdomain.ErrExceeded)
	assert.Zero(t, atomic.LoadInt32(&f.provider.calls), "provider must not run once the budget is gone")
	assert.Empty(t, f.cache.entries)
}

func TestGetOrComputeUnknownType(t *testing.T) {
	f := newFixture(5.00)

	_, err := f.svc.GetOrCompute(context.Background(), 1, domain.Type("poetry"), "", 0)
	assert.ErrorIs(t, err, domain.ErrUnknownType)
	assert.Zero(t, atomic.LoadInt32(&f.provider.calls))
}

func TestGetOrComputeUnknownFunction(t *testing.T) {
	f := newFixture(5.00)

	_, err := f.svc.GetOrCompute(context.Background(), 999, domain.TypeCodeExplanation, "", 0)
	assert.ErrorIs(t, err, functions.ErrNotFound)
	assert.Zero(t, f.spentToday().TotalCost, "lookup failures must not charge the ledger")
}

func TestGetOrComputeProviderFailureReleasesReservation(t *testing.T) {
	f := newFixture(5.00)
	f.provider.failures = 100 // never succeeds

	_, err := f.svc.GetOrCompute(context.Background(), 1, domain.TypeCodeExplanation, "", 0)
	assert.ErrorIs(t, err, domain.ErrAnalysisFailed)
	assert.Equal(t, int32(3), atomic.LoadInt32(&f.provider.calls), "bounded retries")

	spent := f.spentToday()
	assert.Zero(t, spent.TotalCost, "failed analysis must not stay charged")
	assert.Zero(t, spent.RequestCount)
	assert.Empty(t, f.cache.entries)
}

func TestGetOrComputeRetryThenSuccess(t *testing.T) {
	f := newFixture(5.00)
	f.provider.failures = 2

	res, err := f.svc.GetOrCompute(context.Background(), 1, domain.TypeAttackScenario, "", 0)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(3), atomic.LoadInt32(&f.provider.calls))
	assert.InDelta(t, 350*0.00003, f.spentToday().TotalCost, 1e-9)
}

func TestGetOrComputePersistFailureStillReturnsResult(t *testing.T) {
	f := newFixture(5.00)
	f.cache.upsertErr = errors.New("db gone")

	res, err := f.svc.GetOrCompute(context.Background(), 1, domain.TypeCodeExplanation, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "This function injects a payload.", res.Result)
	assert.InDelta(t, 350*0.00003, f.spentToday().TotalCost, 1e-9, "spend is committed even when persist fails")

	// the next request recomputes because nothing was cached
	res2, err := f.svc.GetOrCompute(context.Background(), 1, domain.TypeCodeExplanation, "", 0)
	require.NoError(t, err)
	assert.False(t, res2.Cached)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.provider.calls))
}

func TestGetOrComputeExpiredEntryRecomputes(t *testing.T) {
	f := newFixture(5.00)
	ctx := context.Background()

	_, err := f.svc.GetOrCompute(ctx, 1, domain.TypeCodeExplanation, "", 0)
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)

	res, err := f.svc.GetOrCompute(ctx, 1, domain.TypeCodeExplanation, "", 0)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.provider.calls))
}

func TestGetOrComputeDistinctModelsAreDistinctSlots(t *testing.T) {
	f := newFixture(5.00)
	ctx := context.Background()

	_, err := f.svc.GetOrCompute(ctx, 1, domain.TypeCodeExplanation, "gpt-4", 0)
	require.NoError(t, err)
	_, err = f.svc.GetOrCompute(ctx, 1, domain.TypeCodeExplanation, "gpt-3.5-turbo", 0)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&f.provider.calls))
	assert.Len(t, f.cache.entries, 2)
}

func TestGetOrComputeFetchesStoredSource(t *testing.T) {
	f := newFixture(5.00)
	repo := &fnRepo{fn: &functions.Function{
		ID:        2,
		Summary:   "stub",
		SourceKey: "sources/deadbeef.cpp",
		Status:    functions.StatusOK,
	}}
	store := &srcStore{objects: map[string]string{
		"sources/deadbeef.cpp": "BOOL WriteProcessMemory(...)",
	}}
	f.svc = NewService(f.cache, f.provider, appbudget.NewService(f.ledger, 5.00, time.UTC, f.clock),
		repo, store, f.clock, Options{RetryBackoff: time.Millisecond})

	_, err := f.svc.GetOrCompute(context.Background(), 2, domain.TypeMitigation, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "BOOL WriteProcessMemory(...)", f.provider.lastSrc)
}

func TestGetOrComputeConcurrentMissesShareOneCall(t *testing.T) {
	f := newFixture(5.00)
	f.provider.delay = 20 * time.Millisecond
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make([]domain.Result, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.GetOrCompute(ctx, 1, domain.TypeCodeExplanation, "", 0)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.provider.calls), "waiters must be served from the first computation")
	var cachedHits int
	for _, r := range results {
		assert.Equal(t, "This function injects a payload.", r.Result)
		if r.Cached {
			cachedHits++
		}
	}
	assert.Equal(t, workers-1, cachedHits)
	assert.InDelta(t, 350*0.00003, f.spentToday().TotalCost, 1e-9, "one charge for the whole burst")
}

func TestGetCached(t *testing.T) {
	f := newFixture(5.00)
	ctx := context.Background()

	entry, err := f.svc.GetCached(ctx, 1, domain.TypeCodeExplanation, "gpt-4")
	require.NoError(t, err)
	assert.Nil(t, entry)

	_, err = f.svc.GetOrCompute(ctx, 1, domain.TypeCodeExplanation, "gpt-4", 0)
	require.NoError(t, err)

	entry, err = f.svc.GetCached(ctx, 1, domain.TypeCodeExplanation, "gpt-4")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 350, entry.TokenUsage)

	f.clock.Advance(25 * time.Hour)
	entry, err = f.svc.GetCached(ctx, 1, domain.TypeCodeExplanation, "gpt-4")
	require.NoError(t, err)
	assert.Nil(t, entry, "expired entries are invisible")
}
