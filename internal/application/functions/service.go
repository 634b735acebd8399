package functions

import (
	"context"

	appmapping "github.com/codexray/malapi-catalog/internal/application/mapping"
	domain "github.com/codexray/malapi-catalog/internal/domain/functions"
)

// Service implements use-cases over the function catalogue.
type Service struct {
	repo     domain.Repository
	mappings *appmapping.Service
}

func NewService(repo domain.Repository, mappings *appmapping.Service) *Service {
	return &Service{repo: repo, mappings: mappings}
}

// Get returns one function or domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Function, error) {
	return s.repo.Get(ctx, id)
}

// Paginate lists functions ordered by id asc.
func (s *Service) Paginate(ctx context.Context, page, pageSize int) (domain.PaginatedResult, error) {
	return s.repo.Paginate(ctx, page, pageSize)
}

// Delete removes a function and cascades to its technique mappings.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.mappings.RemoveAllForFunction(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
