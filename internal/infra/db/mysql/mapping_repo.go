package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/codexray/malapi-catalog/internal/domain/mapping"
	"github.com/codexray/malapi-catalog/internal/domain/taxonomy"
)

type MappingRepository struct {
	db *sql.DB
}

func NewMappingRepository(db *sql.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Insert adds one mapping pair; INSERT IGNORE keeps re-adding an existing
// pair a no-op against the unique (function_id, technique_id) key.
func (r *MappingRepository) Insert(ctx context.Context, m *domain.Mapping) error {
	const q = `
INSERT IGNORE INTO attck_mappings
  (function_id, technique_id, mapping_type, confidence_score, is_verified, created_at)
VALUES (?,?,?,?,?,?);
`
	mt := string(m.Meta.Type)
	if mt == "" {
		mt = string(domain.TypePrimary)
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, m.FunctionID, m.TechniqueID, mt, m.Meta.Confidence, m.Meta.Verified, created)
	return err
}

func (r *MappingRepository) Remove(ctx context.Context, functionID int64, techniqueID taxonomy.TechniqueID) error {
	const q = `DELETE FROM attck_mappings WHERE function_id=? AND technique_id=?;`
	_, err := r.db.ExecContext(ctx, q, functionID, techniqueID)
	return err
}

func (r *MappingRepository) RemoveByFunction(ctx context.Context, functionID int64) error {
	const q = `DELETE FROM attck_mappings WHERE function_id=?;`
	_, err := r.db.ExecContext(ctx, q, functionID)
	return err
}

// TechniquesFor lists a function's mappings ordered by technique_id asc
func (r *MappingRepository) TechniquesFor(ctx context.Context, functionID int64) ([]*domain.Mapping, error) {
	const q = `
SELECT function_id, technique_id, mapping_type, confidence_score, is_verified, created_at
FROM attck_mappings
WHERE function_id=?
ORDER BY technique_id ASC;
`
	rows, err := r.db.QueryContext(ctx, q, functionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Mapping
	for rows.Next() {
		var m domain.Mapping
		var mt string
		if err := rows.Scan(&m.FunctionID, &m.TechniqueID, &mt, &m.Meta.Confidence, &m.Meta.Verified, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Meta.Type = domain.Type(mt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// FunctionsFor pages the functions mapped to one technique, function id asc,
// plus the total count for pagination.
func (r *MappingRepository) FunctionsFor(ctx context.Context, techniqueID taxonomy.TechniqueID, page, pageSize int) ([]int64, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT function_id
FROM attck_mappings
WHERE technique_id=?
ORDER BY function_id ASC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, techniqueID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	const cq = `SELECT COUNT(*) FROM attck_mappings WHERE technique_id=?;`
	if err := r.db.QueryRowContext(ctx, cq, techniqueID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return ids, total, nil
}

// CountByTechnique returns COUNT(DISTINCT function_id) per technique in one
// grouped query; the result is tactic-independent.
func (r *MappingRepository) CountByTechnique(ctx context.Context) (map[taxonomy.TechniqueID]int, error) {
	const q = `
SELECT technique_id, COUNT(DISTINCT function_id)
FROM attck_mappings
GROUP BY technique_id;
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[taxonomy.TechniqueID]int)
	for rows.Next() {
		var id taxonomy.TechniqueID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
