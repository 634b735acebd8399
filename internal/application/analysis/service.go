package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/codexray/malapi-catalog/internal/application"
	appbudget "github.com/codexray/malapi-catalog/internal/application/budget"
	domain "github.com/codexray/malapi-catalog/internal/domain/analysis"
	"github.com/codexray/malapi-catalog/internal/domain/functions"
)

// Options tune the analysis pipeline; zero values fall back to the defaults
// below.
type Options struct {
	CacheTTL        time.Duration
	ProviderTimeout time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
	EstimatedTokens int
	DefaultModel    string
	Temperature     float32
	// RatePerToken maps a model name to its USD-per-token price.
	RatePerToken map[string]float64
	DefaultRate  float64
}

func (o *Options) fill() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = 24 * time.Hour
	}
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = 60 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	if o.EstimatedTokens <= 0 {
		o.EstimatedTokens = 2000
	}
	if o.DefaultModel == "" {
		o.DefaultModel = "gpt-4"
	}
	if o.DefaultRate <= 0 {
		o.DefaultRate = 0.00003
	}
}

// Service is the get-or-compute analysis cache, gated by the budget ledger.
// Concurrent identical misses are serialized per key so one provider call
// serves all waiters.
type Service struct {
	cache     domain.CacheRepository
	provider  domain.Provider
	budget    *appbudget.Service
	functions functions.Repository
	sources   functions.SourceStore
	clock     application.Clock
	opts      Options

	mu    sync.Mutex
	locks map[domain.Key]*sync.Mutex
}

func NewService(cache domain.CacheRepository, provider domain.Provider, budget *appbudget.Service,
	fns functions.Repository, sources functions.SourceStore, clock application.Clock, opts Options) *Service {
	opts.fill()
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Service{
		cache:     cache,
		provider:  provider,
		budget:    budget,
		functions: fns,
		sources:   sources,
		clock:     clock,
		opts:      opts,
		locks:     make(map[domain.Key]*sync.Mutex),
	}
}

// keyLock returns the per-key mutex, creating it lazily. The key space is
// bounded (functions × analysis types × models) so entries are never evicted.
func (s *Service) keyLock(key domain.Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *Service) rate(model string) float64 {
	if r, ok := s.opts.RatePerToken[model]; ok {
		return r
	}
	return s.opts.DefaultRate
}

// GetOrCompute returns the live cached entry for (functionID, analysisType,
// model) or computes a fresh one: reserve budget, call the provider with
// bounded retries, commit the actual spend, persist the entry. A cache hit
// touches neither the budget nor the provider.
func (s *Service) GetOrCompute(ctx context.Context, functionID int64, analysisType domain.Type, model string, temperature float32) (domain.Result, error) {
	if !analysisType.Valid() {
		return domain.Result{}, domain.ErrUnknownType
	}
	if model == "" {
		model = s.opts.DefaultModel
	}
	if temperature <= 0 {
		temperature = s.opts.Temperature
	}
	key := domain.Key{FunctionID: functionID, AnalysisType: analysisType, Model: model}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now()
	if entry, err := s.cache.Get(ctx, key); err != nil {
		return domain.Result{}, err
	} else if entry != nil && entry.Live(now) {
		return domain.Result{
			Key:        key,
			Result:     entry.Result,
			TokenUsage: entry.TokenUsage,
			Cached:     true,
			CreatedAt:  entry.CreatedAt,
		}, nil
	}

	fn, err := s.functions.Get(ctx, functionID)
	if err != nil {
		return domain.Result{}, err
	}
	source := fn.Summary
	if fn.SourceKey != "" {
		source, err = s.sources.Fetch(ctx, fn.SourceKey)
		if err != nil {
			return domain.Result{}, fmt.Errorf("fetching source for function %d: %w", functionID, err)
		}
	}

	rate := s.rate(model)
	reservation, err := s.budget.CheckAndReserve(ctx, float64(s.opts.EstimatedTokens)*rate)
	if err != nil {
		return domain.Result{}, err
	}

	pr, err := s.callProvider(ctx, source, analysisType, model, temperature)
	if err != nil {
		if rerr := s.budget.Release(ctx, reservation); rerr != nil {
			log.Printf("budget release failed for reservation %s: %v", reservation.ID, rerr)
		}
		return domain.Result{}, fmt.Errorf("%w: %v", domain.ErrAnalysisFailed, err)
	}

	cost := float64(pr.TokenUsage) * rate
	if err := s.budget.Commit(ctx, reservation, cost, int64(pr.TokenUsage)); err != nil {
		// The analysis is already paid for; an accounting hiccup must not
		// discard it.
		log.Printf("budget commit failed for reservation %s: %v", reservation.ID, err)
	}

	now = s.clock.Now()
	entry := &domain.CacheEntry{
		Key:        key,
		Result:     pr.ResultText,
		TokenUsage: pr.TokenUsage,
		Cost:       cost,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.opts.CacheTTL),
	}
	if err := s.cache.Upsert(ctx, entry); err != nil {
		log.Printf("cache persist failed for function=%d type=%s model=%s: %v",
			functionID, analysisType, model, err)
	}

	return domain.Result{
		Key:        key,
		Result:     pr.ResultText,
		TokenUsage: pr.TokenUsage,
		Cached:     false,
		CreatedAt:  now,
	}, nil
}

// callProvider runs the external call with a per-attempt timeout and a small
// fixed retry budget with doubling backoff.
func (s *Service) callProvider(ctx context.Context, source string, analysisType domain.Type, model string, temperature float32) (domain.ProviderResult, error) {
	var lastErr error
	backoff := s.opts.RetryBackoff
	for attempt := 0; attempt < s.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.ProviderResult{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		cctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
		pr, err := s.provider.Analyze(cctx, source, analysisType, model, temperature)
		cancel()
		if err == nil {
			return pr, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			break
		}
		log.Printf("provider attempt %d/%d failed: %v", attempt+1, s.opts.RetryAttempts, err)
	}
	return domain.ProviderResult{}, lastErr
}

// GetCached returns the live entry for a key without computing anything;
// nil means no visible entry.
func (s *Service) GetCached(ctx context.Context, functionID int64, analysisType domain.Type, model string) (*domain.CacheEntry, error) {
	if model == "" {
		model = s.opts.DefaultModel
	}
	entry, err := s.cache.Get(ctx, domain.Key{FunctionID: functionID, AnalysisType: analysisType, Model: model})
	if err != nil {
		return nil, err
	}
	if entry == nil || !entry.Live(s.clock.Now()) {
		return nil, nil
	}
	return entry, nil
}
