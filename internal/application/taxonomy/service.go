package taxonomy

import (
	"context"

	domain "github.com/codexray/malapi-catalog/internal/domain/taxonomy"
)

// Service implements the read-side use-cases over the taxonomy.
// The taxonomy itself is reference data loaded by the importer; nothing here
// mutates it.
type Service struct {
	repo domain.Repository
}

func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// ListTactics returns all tactics in curated matrix order.
func (s *Service) ListTactics(ctx context.Context) ([]*domain.Tactic, error) {
	return s.repo.SelectTactics(ctx)
}

// GetTactic returns one tactic or domain.ErrNotFound.
func (s *Service) GetTactic(ctx context.Context, id domain.TacticID) (*domain.Tactic, error) {
	return s.repo.GetTactic(ctx, id)
}

// ListTechniques returns techniques matching the filter, ordered by
// technique_id. An empty filter lists everything non-revoked; no filter
// combination is an error.
func (s *Service) ListTechniques(ctx context.Context, f domain.Filter) ([]*domain.Technique, error) {
	return s.repo.SelectTechniques(ctx, f)
}

// GetTechnique returns one technique or domain.ErrNotFound. With
// includeSubtechniques set, a top-level technique carries its ordered
// sub-technique list; sub-techniques never nest further.
func (s *Service) GetTechnique(ctx context.Context, id domain.TechniqueID, includeSubtechniques bool) (*domain.Technique, error) {
	tech, err := s.repo.GetTechnique(ctx, id)
	if err != nil {
		return nil, err
	}
	if includeSubtechniques && !tech.IsSubTechnique {
		subs, err := s.repo.SelectSubTechniques(ctx, tech.TechniqueID)
		if err != nil {
			return nil, err
		}
		tech.SubTechniques = subs
	}
	return tech, nil
}
