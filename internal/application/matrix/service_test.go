package matrix

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexray/malapi-catalog/internal/domain/mapping"
	"github.com/codexray/malapi-catalog/internal/domain/taxonomy"
)

type memTaxonomy struct {
	tactics    []*taxonomy.Tactic
	techniques []*taxonomy.Technique
}

func (r *memTaxonomy) SelectTactics(ctx context.Context) ([]*taxonomy.Tactic, error) {
	out := append([]*taxonomy.Tactic(nil), r.tactics...)
	sort.Slice(out, func(i, j int) bool { return out[i].MatrixOrder < out[j].MatrixOrder })
	return out, nil
}

func (r *memTaxonomy) GetTactic(ctx context.Context, id taxonomy.TacticID) (*taxonomy.Tactic, error) {
	return nil, taxonomy.ErrNotFound
}

func (r *memTaxonomy) SelectTechniques(ctx context.Context, f taxonomy.Filter) ([]*taxonomy.Technique, error) {
	var out []*taxonomy.Technique
	for _, t := range r.techniques {
		if f.RevokedOnly != t.Revoked {
			continue
		}
		if !f.IncludeSubtechniques && t.IsSubTechnique {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *memTaxonomy) GetTechnique(ctx context.Context, id taxonomy.TechniqueID) (*taxonomy.Technique, error) {
	return nil, taxonomy.ErrNotFound
}

func (r *memTaxonomy) SelectSubTechniques(ctx context.Context, parent taxonomy.TechniqueID) ([]*taxonomy.Technique, error) {
	return nil, nil
}

func (r *memTaxonomy) Load(ctx context.Context, tactics []*taxonomy.Tactic, techniques []*taxonomy.Technique) error {
	return nil
}

// countRepo serves CountByTechnique from a fixed map; the matrix never calls
// anything else on the mapping repository.
type countRepo struct {
	counts map[taxonomy.TechniqueID]int
}

func (r *countRepo) Insert(ctx context.Context, m *mapping.Mapping) error { return nil }
func (r *countRepo) Remove(ctx context.Context, functionID int64, techniqueID taxonomy.TechniqueID) error {
	return nil
}
func (r *countRepo) RemoveByFunction(ctx context.Context, functionID int64) error { return nil }
func (r *countRepo) TechniquesFor(ctx context.Context, functionID int64) ([]*mapping.Mapping, error) {
	return nil, nil
}
func (r *countRepo) FunctionsFor(ctx context.Context, techniqueID taxonomy.TechniqueID, page, pageSize int) ([]int64, int64, error) {
	return nil, 0, nil
}
func (r *countRepo) CountByTechnique(ctx context.Context) (map[taxonomy.TechniqueID]int, error) {
	return r.counts, nil
}

func fixtureService() *Service {
	tax := &memTaxonomy{
		tactics: []*taxonomy.Tactic{
			{TacticID: "TA0005", NameEN: "Defense Evasion", MatrixOrder: 7},
			{TacticID: "TA0002", NameEN: "Execution", MatrixOrder: 3},
		},
		techniques: []*taxonomy.Technique{
			{TechniqueID: "T1059", Name: "Command and Scripting Interpreter", TacticIDs: []taxonomy.TacticID{"TA0002"}},
			{TechniqueID: "T1059.001", Name: "PowerShell", TacticIDs: []taxonomy.TacticID{"TA0002"}, IsSubTechnique: true, ParentTechniqueID: "T1059"},
			{TechniqueID: "T1027", Name: "Obfuscated Files or Information", TacticIDs: []taxonomy.TacticID{"TA0005"}},
			// belongs to both tactics
			{TechniqueID: "T1140", Name: "Deobfuscate/Decode Files or Information", TacticIDs: []taxonomy.TacticID{"TA0002", "TA0005"}},
			{TechniqueID: "T1064", Name: "Scripting", TacticIDs: []taxonomy.TacticID{"TA0002"}, Revoked: true},
		},
	}
	maps := &countRepo{counts: map[taxonomy.TechniqueID]int{
		"T1059":     3,
		"T1059.001": 2,
		"T1140":     5,
	}}
	return NewService(tax, maps)
}

func TestBuildMatrix(t *testing.T) {
	svc := fixtureService()

	cols, err := svc.BuildMatrix(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, cols, 2)

	// curated order puts Execution before Defense Evasion
	assert.Equal(t, taxonomy.TacticID("TA0002"), cols[0].TacticID)
	assert.Equal(t, taxonomy.TacticID("TA0005"), cols[1].TacticID)

	exec := cols[0]
	require.Len(t, exec.Techniques, 2)
	assert.Equal(t, taxonomy.TechniqueID("T1059"), exec.Techniques[0].TechniqueID)
	assert.Equal(t, 3, exec.Techniques[0].FunctionCount)
	require.Len(t, exec.Techniques[0].SubTechniques, 1)
	assert.Equal(t, taxonomy.TechniqueID("T1059.001"), exec.Techniques[0].SubTechniques[0].TechniqueID)
	assert.Equal(t, 2, exec.Techniques[0].SubTechniques[0].FunctionCount)

	// revoked T1064 never appears
	for _, c := range exec.Techniques {
		assert.NotEqual(t, taxonomy.TechniqueID("T1064"), c.TechniqueID)
	}
}

func TestBuildMatrixWithoutSubtechniques(t *testing.T) {
	svc := fixtureService()

	cols, err := svc.BuildMatrix(context.Background(), false)
	require.NoError(t, err)
	for _, col := range cols {
		for _, cell := range col.Techniques {
			assert.Empty(t, cell.SubTechniques)
		}
	}
	// parent counts are unaffected by hiding the sub rows
	assert.Equal(t, 3, cols[0].Techniques[0].FunctionCount)
}

func TestBuildMatrixCountIsTacticIndependent(t *testing.T) {
	svc := fixtureService()

	cols, err := svc.BuildMatrix(context.Background(), false)
	require.NoError(t, err)

	find := func(col TacticColumn, id taxonomy.TechniqueID) *TechniqueCell {
		for i := range col.Techniques {
			if col.Techniques[i].TechniqueID == id {
				return &col.Techniques[i]
			}
		}
		return nil
	}
	inExec := find(cols[0], "T1140")
	inEvasion := find(cols[1], "T1140")
	require.NotNil(t, inExec)
	require.NotNil(t, inEvasion)
	assert.Equal(t, 5, inExec.FunctionCount)
	assert.Equal(t, inExec.FunctionCount, inEvasion.FunctionCount)
}

func TestBuildMatrixUnmappedTechniqueCountsZero(t *testing.T) {
	svc := fixtureService()

	cols, err := svc.BuildMatrix(context.Background(), false)
	require.NoError(t, err)
	// T1027 has no mappings
	evasion := cols[1]
	require.Len(t, evasion.Techniques, 2)
	assert.Equal(t, taxonomy.TechniqueID("T1027"), evasion.Techniques[0].TechniqueID)
	assert.Equal(t, 0, evasion.Techniques[0].FunctionCount)
}

func TestGetStatistics(t *testing.T) {
	svc := fixtureService()

	stats, err := svc.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Statistics{
		Tactics:            2,
		TopLevelTechniques: 4,
		Subtechniques:      1,
		TotalTechniques:    5,
		Revoked:            1,
	}, stats)
}
