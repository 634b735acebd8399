package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	domain "github.com/codexray/malapi-catalog/internal/domain/functions"
)

type FunctionRepository struct {
	db *sql.DB
}

func NewFunctionRepository(db *sql.DB) *FunctionRepository {
	return &FunctionRepository{db: db}
}

func (r *FunctionRepository) Get(ctx context.Context, id int64) (*domain.Function, error) {
	const q = `
SELECT id, hash_id, alias, COALESCE(root_function,''), COALESCE(summary,''),
       COALESCE(source_key,''), status, created_at, updated_at
FROM malapi_functions
WHERE id=$1 LIMIT 1;
`
	var f domain.Function
	err := r.db.QueryRowContext(ctx, q, id).Scan(&f.ID, &f.HashID, &f.Alias, &f.RootFunction,
		&f.Summary, &f.SourceKey, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FunctionRepository) Paginate(ctx context.Context, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, hash_id, alias, COALESCE(root_function,''), COALESCE(summary,''),
       COALESCE(source_key,''), status, created_at, updated_at
FROM malapi_functions
ORDER BY id ASC
LIMIT $1 OFFSET $2;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying functions: %w", err)
	}
	defer rows.Close()

	var fns []*domain.Function
	for rows.Next() {
		var f domain.Function
		if err := rows.Scan(&f.ID, &f.HashID, &f.Alias, &f.RootFunction,
			&f.Summary, &f.SourceKey, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return domain.PaginatedResult{}, fmt.Errorf("scanning row: %w", err)
		}
		fns = append(fns, &f)
	}
	if err := rows.Err(); err != nil {
		return domain.PaginatedResult{}, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM malapi_functions;`).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("getting total count: %w", err)
	}

	return domain.PaginatedResult{
		Data:       fns,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

func (r *FunctionRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM malapi_functions WHERE id=$1;`, id)
	return err
}
