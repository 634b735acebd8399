package functions

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appmapping "github.com/codexray/malapi-catalog/internal/application/mapping"
	domain "github.com/codexray/malapi-catalog/internal/domain/functions"
	mappingdomain "github.com/codexray/malapi-catalog/internal/domain/mapping"
	"github.com/codexray/malapi-catalog/internal/domain/taxonomy"
)

type memRepo struct {
	fns map[int64]*domain.Function
}

func (r *memRepo) Get(ctx context.Context, id int64) (*domain.Function, error) {
	fn, ok := r.fns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return fn, nil
}

func (r *memRepo) Paginate(ctx context.Context, page, pageSize int) (domain.PaginatedResult, error) {
	var all []*domain.Function
	for _, fn := range r.fns {
		all = append(all, fn)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	off := (page - 1) * pageSize
	if off > len(all) {
		off = len(all)
	}
	end := off + pageSize
	if end > len(all) {
		end = len(all)
	}
	return domain.PaginatedResult{
		Data:       all[off:end],
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

func (r *memRepo) Delete(ctx context.Context, id int64) error {
	delete(r.fns, id)
	return nil
}

type memMappings struct {
	byFunction map[int64][]taxonomy.TechniqueID
}

func (r *memMappings) Insert(ctx context.Context, m *mappingdomain.Mapping) error {
	r.byFunction[m.FunctionID] = append(r.byFunction[m.FunctionID], m.TechniqueID)
	return nil
}

func (r *memMappings) Remove(ctx context.Context, functionID int64, techniqueID taxonomy.TechniqueID) error {
	return nil
}

func (r *memMappings) RemoveByFunction(ctx context.Context, functionID int64) error {
	delete(r.byFunction, functionID)
	return nil
}

func (r *memMappings) TechniquesFor(ctx context.Context, functionID int64) ([]*mappingdomain.Mapping, error) {
	var out []*mappingdomain.Mapping
	for _, id := range r.byFunction[functionID] {
		out = append(out, &mappingdomain.Mapping{FunctionID: functionID, TechniqueID: id})
	}
	return out, nil
}

func (r *memMappings) FunctionsFor(ctx context.Context, techniqueID taxonomy.TechniqueID, page, pageSize int) ([]int64, int64, error) {
	return nil, 0, nil
}

func (r *memMappings) CountByTechnique(ctx context.Context) (map[taxonomy.TechniqueID]int, error) {
	return nil, nil
}

type allowAllTaxonomy struct{}

func (allowAllTaxonomy) SelectTactics(ctx context.Context) ([]*taxonomy.Tactic, error) {
	return nil, nil
}
func (allowAllTaxonomy) GetTactic(ctx context.Context, id taxonomy.TacticID) (*taxonomy.Tactic, error) {
	return nil, taxonomy.ErrNotFound
}
func (allowAllTaxonomy) SelectTechniques(ctx context.Context, f taxonomy.Filter) ([]*taxonomy.Technique, error) {
	return nil, nil
}
func (allowAllTaxonomy) GetTechnique(ctx context.Context, id taxonomy.TechniqueID) (*taxonomy.Technique, error) {
	return &taxonomy.Technique{TechniqueID: id}, nil
}
func (allowAllTaxonomy) SelectSubTechniques(ctx context.Context, parent taxonomy.TechniqueID) ([]*taxonomy.Technique, error) {
	return nil, nil
}
func (allowAllTaxonomy) Load(ctx context.Context, tactics []*taxonomy.Tactic, techniques []*taxonomy.Technique) error {
	return nil
}

func TestDeleteCascadesToMappings(t *testing.T) {
	repo := &memRepo{fns: map[int64]*domain.Function{
		1: {ID: 1, HashID: "a1", Alias: "inject_payload"},
		2: {ID: 2, HashID: "b2", Alias: "query_registry"},
	}}
	maps := &memMappings{byFunction: map[int64][]taxonomy.TechniqueID{
		1: {"T1055", "T1059"},
		2: {"T1012"},
	}}
	svc := NewService(repo, appmapping.NewService(maps, allowAllTaxonomy{}))
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, 1))

	_, err := svc.Get(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotContains(t, maps.byFunction, int64(1))
	assert.Contains(t, maps.byFunction, int64(2))
}

func TestPaginate(t *testing.T) {
	repo := &memRepo{fns: map[int64]*domain.Function{}}
	for id := int64(1); id <= 45; id++ {
		repo.fns[id] = &domain.Function{ID: id}
	}
	svc := NewService(repo, appmapping.NewService(&memMappings{byFunction: map[int64][]taxonomy.TechniqueID{}}, allowAllTaxonomy{}))

	res, err := svc.Paginate(context.Background(), 3, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(45), res.Total)
	assert.Equal(t, 3, res.TotalPages)
	assert.Len(t, res.Data, 5)
	assert.Equal(t, int64(41), res.Data[0].ID)
}
