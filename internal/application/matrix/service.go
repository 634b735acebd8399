package matrix

import (
	"context"
	"sort"

	"github.com/codexray/malapi-catalog/internal/domain/mapping"
	"github.com/codexray/malapi-catalog/internal/domain/taxonomy"
)

// TechniqueCell is one cell of the matrix. FunctionCount is the number of
// distinct functions mapped to the technique; it does not depend on which
// tactic column the cell sits in.
type TechniqueCell struct {
	TechniqueID   taxonomy.TechniqueID `json:"technique_id"`
	Name          string               `json:"technique_name"`
	FunctionCount int                  `json:"function_count"`
	SubTechniques []TechniqueCell      `json:"subtechniques,omitempty"`
}

// TacticColumn is one tactic column of the matrix.
type TacticColumn struct {
	TacticID   taxonomy.TacticID `json:"tactic_id"`
	NameEN     string            `json:"tactic_name"`
	NameCN     string            `json:"tactic_name_cn,omitempty"`
	Techniques []TechniqueCell   `json:"techniques"`
}

// Statistics are aggregate counts over the taxonomy alone.
type Statistics struct {
	Tactics            int `json:"tactics"`
	TopLevelTechniques int `json:"parent_techniques"`
	Subtechniques      int `json:"subtechniques"`
	TotalTechniques    int `json:"total_techniques"`
	Revoked            int `json:"revoked"`
}

// Service aggregates the taxonomy and the mapping index into the displayable
// tactic×technique grid. Building the matrix is a pure read.
type Service struct {
	taxonomy taxonomy.Repository
	mappings mapping.Repository
}

func NewService(tax taxonomy.Repository, maps mapping.Repository) *Service {
	return &Service{taxonomy: tax, mappings: maps}
}

// BuildMatrix returns one column per tactic in curated display order. Cells
// are the tactic's non-revoked top-level techniques ordered by technique_id;
// with includeSubtechniques each cell also carries its ordered sub-technique
// cells. A technique belonging to several tactics shows the identical count
// in every column.
func (s *Service) BuildMatrix(ctx context.Context, includeSubtechniques bool) ([]TacticColumn, error) {
	tactics, err := s.taxonomy.SelectTactics(ctx)
	if err != nil {
		return nil, err
	}
	techs, err := s.taxonomy.SelectTechniques(ctx, taxonomy.Filter{IncludeSubtechniques: true})
	if err != nil {
		return nil, err
	}
	counts, err := s.mappings.CountByTechnique(ctx)
	if err != nil {
		return nil, err
	}

	children := make(map[taxonomy.TechniqueID][]*taxonomy.Technique)
	for _, t := range techs {
		if t.IsSubTechnique {
			children[t.ParentTechniqueID] = append(children[t.ParentTechniqueID], t)
		}
	}
	for _, subs := range children {
		sort.Slice(subs, func(i, j int) bool { return subs[i].TechniqueID < subs[j].TechniqueID })
	}

	columns := make([]TacticColumn, 0, len(tactics))
	for _, tactic := range tactics {
		col := TacticColumn{
			TacticID:   tactic.TacticID,
			NameEN:     tactic.NameEN,
			NameCN:     tactic.NameCN,
			Techniques: []TechniqueCell{},
		}
		for _, t := range techs {
			if t.IsSubTechnique || !t.BelongsTo(tactic.TacticID) {
				continue
			}
			cell := TechniqueCell{
				TechniqueID:   t.TechniqueID,
				Name:          t.Name,
				FunctionCount: counts[t.TechniqueID],
			}
			if includeSubtechniques {
				for _, sub := range children[t.TechniqueID] {
					cell.SubTechniques = append(cell.SubTechniques, TechniqueCell{
						TechniqueID:   sub.TechniqueID,
						Name:          sub.Name,
						FunctionCount: counts[sub.TechniqueID],
					})
				}
			}
			col.Techniques = append(col.Techniques, cell)
		}
		sort.Slice(col.Techniques, func(i, j int) bool {
			return col.Techniques[i].TechniqueID < col.Techniques[j].TechniqueID
		})
		columns = append(columns, col)
	}
	return columns, nil
}

// GetStatistics counts tactics and techniques; the mapping index plays no
// part in these numbers.
func (s *Service) GetStatistics(ctx context.Context) (Statistics, error) {
	tactics, err := s.taxonomy.SelectTactics(ctx)
	if err != nil {
		return Statistics{}, err
	}
	active, err := s.taxonomy.SelectTechniques(ctx, taxonomy.Filter{IncludeSubtechniques: true})
	if err != nil {
		return Statistics{}, err
	}
	revoked, err := s.taxonomy.SelectTechniques(ctx, taxonomy.Filter{IncludeSubtechniques: true, RevokedOnly: true})
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{Tactics: len(tactics), Revoked: len(revoked)}
	for _, t := range append(active, revoked...) {
		if t.IsSubTechnique {
			stats.Subtechniques++
		} else {
			stats.TopLevelTechniques++
		}
	}
	stats.TotalTechniques = stats.TopLevelTechniques + stats.Subtechniques
	return stats, nil
}
