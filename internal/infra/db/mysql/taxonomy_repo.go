package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/codexray/malapi-catalog/internal/domain/taxonomy"
)

type TaxonomyRepository struct {
	db *sql.DB
}

func NewTaxonomyRepository(db *sql.DB) *TaxonomyRepository {
	return &TaxonomyRepository{db: db}
}

// SelectTactics returns all tactics in curated matrix order
func (r *TaxonomyRepository) SelectTactics(ctx context.Context) ([]*domain.Tactic, error) {
	const q = `
SELECT tactic_id, tactic_name_en, COALESCE(tactic_name_cn,''), COALESCE(description,''), matrix_order
FROM attack_tactics
ORDER BY matrix_order ASC, tactic_id ASC;
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Tactic
	for rows.Next() {
		var t domain.Tactic
		if err := rows.Scan(&t.TacticID, &t.NameEN, &t.NameCN, &t.Description, &t.MatrixOrder); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *TaxonomyRepository) GetTactic(ctx context.Context, id domain.TacticID) (*domain.Tactic, error) {
	const q = `
SELECT tactic_id, tactic_name_en, COALESCE(tactic_name_cn,''), COALESCE(description,''), matrix_order
FROM attack_tactics
WHERE tactic_id=? LIMIT 1;
`
	var t domain.Tactic
	err := r.db.QueryRowContext(ctx, q, id).Scan(&t.TacticID, &t.NameEN, &t.NameCN, &t.Description, &t.MatrixOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SelectTechniques builds the filter clauses the same way the scan listing
// does: plain WHERE fragments plus args. Revoked techniques are hidden unless
// RevokedOnly is set.
func (r *TaxonomyRepository) SelectTechniques(ctx context.Context, f domain.Filter) ([]*domain.Technique, error) {
	query := `
SELECT technique_id, technique_name, is_sub_technique, COALESCE(parent_technique_id,''),
       COALESCE(description,''), COALESCE(detection,''), COALESCE(platforms,''), revoked, deprecated
FROM attack_techniques
WHERE 1=1`
	var args []interface{}

	if f.TacticID != "" {
		query += `
  AND technique_id IN (SELECT technique_id FROM attack_technique_tactics WHERE tactic_id = ?)`
		args = append(args, f.TacticID)
	}
	if f.Platform != "" {
		query += "\n  AND platforms LIKE ?"
		args = append(args, "%"+f.Platform+"%")
	}
	if !f.IncludeSubtechniques {
		query += "\n  AND is_sub_technique = 0"
	}
	if f.RevokedOnly {
		query += "\n  AND revoked = 1"
	} else {
		query += "\n  AND revoked = 0"
	}
	query += "\nORDER BY technique_id ASC;"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying techniques: %w", err)
	}
	defer rows.Close()

	var out []*domain.Technique
	byID := make(map[domain.TechniqueID]*domain.Technique)
	for rows.Next() {
		var t domain.Technique
		if err := rows.Scan(&t.TechniqueID, &t.Name, &t.IsSubTechnique, &t.ParentTechniqueID,
			&t.Description, &t.Detection, &t.Platforms, &t.Revoked, &t.Deprecated); err != nil {
			return nil, err
		}
		out = append(out, &t)
		byID[t.TechniqueID] = &t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	if err := r.attachTacticLinks(ctx, byID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *TaxonomyRepository) GetTechnique(ctx context.Context, id domain.TechniqueID) (*domain.Technique, error) {
	const q = `
SELECT technique_id, technique_name, is_sub_technique, COALESCE(parent_technique_id,''),
       COALESCE(description,''), COALESCE(detection,''), COALESCE(platforms,''), revoked, deprecated
FROM attack_techniques
WHERE technique_id=? LIMIT 1;
`
	var t domain.Technique
	err := r.db.QueryRowContext(ctx, q, id).Scan(&t.TechniqueID, &t.Name, &t.IsSubTechnique, &t.ParentTechniqueID,
		&t.Description, &t.Detection, &t.Platforms, &t.Revoked, &t.Deprecated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachTacticLinks(ctx, map[domain.TechniqueID]*domain.Technique{t.TechniqueID: &t}); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaxonomyRepository) SelectSubTechniques(ctx context.Context, parent domain.TechniqueID) ([]*domain.Technique, error) {
	const q = `
SELECT technique_id, technique_name, is_sub_technique, COALESCE(parent_technique_id,''),
       COALESCE(description,''), COALESCE(detection,''), COALESCE(platforms,''), revoked, deprecated
FROM attack_techniques
WHERE parent_technique_id=? AND revoked=0
ORDER BY technique_id ASC;
`
	rows, err := r.db.QueryContext(ctx, q, parent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Technique
	for rows.Next() {
		var t domain.Technique
		if err := rows.Scan(&t.TechniqueID, &t.Name, &t.IsSubTechnique, &t.ParentTechniqueID,
			&t.Description, &t.Detection, &t.Platforms, &t.Revoked, &t.Deprecated); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// attachTacticLinks fills TacticIDs (ordered by position) for the given set
func (r *TaxonomyRepository) attachTacticLinks(ctx context.Context, byID map[domain.TechniqueID]*domain.Technique) error {
	const q = `
SELECT technique_id, tactic_id
FROM attack_technique_tactics
ORDER BY technique_id ASC, position ASC;
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var techID domain.TechniqueID
		var tacID domain.TacticID
		if err := rows.Scan(&techID, &tacID); err != nil {
			return err
		}
		if t, ok := byID[techID]; ok {
			t.TacticIDs = append(t.TacticIDs, tacID)
		}
	}
	return rows.Err()
}

// Load replaces the whole taxonomy in one transaction; only the importer
// calls this.
func (r *TaxonomyRepository) Load(ctx context.Context, tactics []*domain.Tactic, techniques []*domain.Technique) error {
	if err := domain.Validate(tactics, techniques); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range []string{"attack_technique_tactics", "attack_techniques", "attack_tactics"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t+";"); err != nil {
			return err
		}
	}

	const insTactic = `
INSERT INTO attack_tactics (tactic_id, tactic_name_en, tactic_name_cn, description, matrix_order)
VALUES (?,?,?,?,?);`
	for _, t := range tactics {
		if _, err := tx.ExecContext(ctx, insTactic, t.TacticID, t.NameEN, t.NameCN, t.Description, t.MatrixOrder); err != nil {
			return fmt.Errorf("loading tactic %s: %w", t.TacticID, err)
		}
	}

	const insTech = `
INSERT INTO attack_techniques
  (technique_id, technique_name, is_sub_technique, parent_technique_id, description, detection, platforms, revoked, deprecated)
VALUES (?,?,?,?,?,?,?,?,?);`
	const insLink = `
INSERT INTO attack_technique_tactics (technique_id, tactic_id, position) VALUES (?,?,?);`
	for _, t := range techniques {
		var parent interface{}
		if t.ParentTechniqueID != "" {
			parent = string(t.ParentTechniqueID)
		}
		if _, err := tx.ExecContext(ctx, insTech, t.TechniqueID, t.Name, t.IsSubTechnique, parent,
			t.Description, t.Detection, t.Platforms, t.Revoked, t.Deprecated); err != nil {
			return fmt.Errorf("loading technique %s: %w", t.TechniqueID, err)
		}
		for i, tac := range t.TacticIDs {
			if _, err := tx.ExecContext(ctx, insLink, t.TechniqueID, tac, i); err != nil {
				return fmt.Errorf("linking technique %s to tactic %s: %w", t.TechniqueID, tac, err)
			}
		}
	}
	return tx.Commit()
}
