package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	domain "github.com/codexray/malapi-catalog/internal/domain/analysis"
)

type CacheRepository struct {
	db *sql.DB
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

func (r *CacheRepository) Get(ctx context.Context, key domain.Key) (*domain.CacheEntry, error) {
	const q = `
SELECT function_id, analysis_type, llm_model, analysis_result, token_usage, cost_usd, created_at, expires_at
FROM llm_analysis_cache
WHERE function_id=$1 AND analysis_type=$2 AND llm_model=$3 LIMIT 1;
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

func (r *CacheRepository) Upsert(ctx context.Context, e *domain.CacheEntry) error {
	const q = `
INSERT INTO llm_analysis_cache
  (function_id, analysis_type, llm_model, analysis_result, token_usage, cost_usd, created_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (function_id, analysis_type, llm_model) DO UPDATE SET
  analysis_result=EXCLUDED.analysis_result,
  token_usage=EXCLUDED.token_usage,
  cost_usd=EXCLUDED.cost_usd,
  created_at=EXCLUDED.created_at,
  expires_at=EXCLUDED.expires_at;
`
	result := e.Result
	if strings.TrimSpace(result) == "" {
		result = "-"
	}
	_, err := r.db.ExecContext(ctx, q, e.Key.FunctionID, e.Key.AnalysisType, e.Key.Model,
		result, e.TokenUsage, e.Cost, e.CreatedAt, e.ExpiresAt)
	return err
}
