package mapping

import (
	"context"
	"errors"

	domain "github.com/codexray/malapi-catalog/internal/domain/mapping"
	"github.com/codexray/malapi-catalog/internal/domain/taxonomy"
)

// Service implements the function↔technique mapping use-cases. Inserts are
// validated against the taxonomy so a mapping can never reference a technique
// that does not exist.
type Service struct {
	repo     domain.Repository
	taxonomy taxonomy.Repository
}

func NewService(repo domain.Repository, tax taxonomy.Repository) *Service {
	return &Service{repo: repo, taxonomy: tax}
}

// AddMapping annotates a function with a technique. Re-adding an existing
// pair is a no-op; an unknown technique id fails with ErrUnknownTechnique.
func (s *Service) AddMapping(ctx context.Context, functionID int64, techniqueID taxonomy.TechniqueID, meta domain.Metadata) error {
	if _, err := s.taxonomy.GetTechnique(ctx, techniqueID); err != nil {
		if errors.Is(err, taxonomy.ErrNotFound) {
			return domain.ErrUnknownTechnique
		}
		return err
	}
	return s.repo.Insert(ctx, &domain.Mapping{
		FunctionID:  functionID,
		TechniqueID: techniqueID,
		Meta:        meta,
	})
}

// RemoveMapping deletes one pair; removing an absent pair is a no-op.
func (s *Service) RemoveMapping(ctx context.Context, functionID int64, techniqueID taxonomy.TechniqueID) error {
	return s.repo.Remove(ctx, functionID, techniqueID)
}

// RemoveAllForFunction cascades a function delete to its mappings.
func (s *Service) RemoveAllForFunction(ctx context.Context, functionID int64) error {
	return s.repo.RemoveByFunction(ctx, functionID)
}

// TechniquesFor lists a function's mappings ordered by technique_id asc.
func (s *Service) TechniquesFor(ctx context.Context, functionID int64) ([]*domain.Mapping, error) {
	return s.repo.TechniquesFor(ctx, functionID)
}

// FunctionsFor pages through the functions mapped to a technique, ordered by
// function id asc, with the total count.
func (s *Service) FunctionsFor(ctx context.Context, techniqueID taxonomy.TechniqueID, page, pageSize int) (domain.Page, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	ids, total, err := s.repo.FunctionsFor(ctx, techniqueID, page, pageSize)
	if err != nil {
		return domain.Page{}, err
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return domain.Page{
		FunctionIDs: ids,
		Page:        page,
		PageSize:    pageSize,
		Total:       total,
		TotalPages:  totalPages,
	}, nil
}
