package mapping

import (
	"context"

	"github.com/codexray/malapi-catalog/internal/domain/taxonomy"
)

// Page of function ids mapped to one technique
type Page struct {
	FunctionIDs []int64 `json:"data"`
	Page        int     `json:"page"`
	PageSize    int     `json:"pageSize"`
	Total       int64   `json:"totalItems"`
	TotalPages  int     `json:"totalPages"`
}

// Repository port (interface for persistence)
type Repository interface {
	// Insert is idempotent: re-adding an existing pair is a no-op.
	Insert(ctx context.Context, m *Mapping) error
	Remove(ctx context.Context, functionID int64, techniqueID taxonomy.TechniqueID) error
	// RemoveByFunction cascades a function delete to its mappings.
	RemoveByFunction(ctx context.Context, functionID int64) error
	TechniquesFor(ctx context.Context, functionID int64) ([]*Mapping, error)
	FunctionsFor(ctx context.Context, techniqueID taxonomy.TechniqueID, page, pageSize int) ([]int64, int64, error)
	// CountByTechnique returns COUNT(DISTINCT function_id) per technique.
	CountByTechnique(ctx context.Context) (map[taxonomy.TechniqueID]int, error)
}
