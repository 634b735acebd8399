package analysis

import "context"

// CacheRepository port (interface for persistence)
type CacheRepository interface {
	Get(ctx context.Context, key Key) (*CacheEntry, error) // nil when absent
	// Upsert replaces any prior entry for the same key.
	Upsert(ctx context.Context, e *CacheEntry) error
}

// ProviderResult is what the external analysis provider returns.
type ProviderResult struct {
	ResultText string
	TokenUsage int
}

// Provider port for the external analysis service; may fail transiently.
type Provider interface {
	Analyze(ctx context.Context, sourceCode string, analysisType Type, model string, temperature float32) (ProviderResult, error)
}
