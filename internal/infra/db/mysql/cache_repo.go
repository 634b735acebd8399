package mysql

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/codexray/malapi-catalog/internal/domain/analysis"
)

type CacheRepository struct {
	db *sql.DB
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

// Get returns the stored entry for a key, expired or not; liveness is the
// caller's lazy check. nil means nothing stored.
func (r *CacheRepository) Get(ctx context.Context, key domain.Key) (*domain.CacheEntry, error) {
	const q = `
SELECT function_id, analysis_type, llm_model, analysis_result, token_usage, cost_usd, created_at, expires_at
FROM llm_analysis_cache
WHERE function_id=? AND analysis_type=? AND llm_model=? LIMIT 1;
`
	var e domain.CacheEntry
	var typ string
	err := r.db.QueryRowContext(ctx, q, key.FunctionID, key.AnalysisType, key.Model).Scan(
		&e.Key.FunctionID, &typ, &e.Key.Model, &e.Result, &e.TokenUsage, &e.Cost, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Key.AnalysisType = domain.Type(typ)
	return &e, nil
}

// Upsert overwrites any prior entry for the same key; the unique
// (function_id, analysis_type, llm_model) index keeps at most one row live.
func (r *CacheRepository) Upsert(ctx context.Context, e *domain.CacheEntry) error {
	const q = `
INSERT INTO llm_analysis_cache
  (function_id, analysis_type, llm_model, analysis_result, token_usage, cost_usd, created_at, expires_at)
VALUES (?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  analysis_result=VALUES(analysis_result), token_usage=VALUES(token_usage),
  cost_usd=VALUES(cost_usd), created_at=VALUES(created_at), expires_at=VALUES(expires_at);
`
	result := stringOrDash(e.Result)
	_, err := r.db.ExecContext(ctx, q, e.Key.FunctionID, e.Key.AnalysisType, e.Key.Model,
		result, e.TokenUsage, e.Cost, e.CreatedAt, e.ExpiresAt)
	return err
}
