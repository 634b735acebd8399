package taxonomy

import "time"

// TacticID external identifier type (e.g. "TA0002")
type TacticID string

// TechniqueID external identifier type (e.g. "T1059" or "T1059.001")
type TechniqueID string

// Tactic reference data; loaded once by the importer, never mutated
type Tactic struct {
	TacticID    TacticID  `json:"tactic_id"`
	NameEN      string    `json:"tactic_name_en"`
	NameCN      string    `json:"tactic_name_cn,omitempty"`
	Description string    `json:"description,omitempty"`
	MatrixOrder int       `json:"matrix_order"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Technique belongs to one or more tactics; sub-techniques reference a
// top-level parent (depth is capped at two levels)
type Technique struct {
	TechniqueID       TechniqueID   `json:"technique_id"`
	Name              string        `json:"technique_name"`
	TacticIDs         []TacticID    `json:"tactic_ids"`
	IsSubTechnique    bool          `json:"is_sub_technique"`
	ParentTechniqueID TechniqueID   `json:"parent_technique_id,omitempty"`
	Description       string        `json:"description,omitempty"`
	Detection         string        `json:"detection,omitempty"`
	Platforms         string        `json:"platforms,omitempty"`
	Revoked           bool          `json:"revoked"`
	Deprecated        bool          `json:"deprecated"`
	SubTechniques     []*Technique  `json:"subtechniques,omitempty"`
}

// BelongsTo reports whether the technique is listed under the given tactic
func (t *Technique) BelongsTo(tactic TacticID) bool {
	for _, id := range t.TacticIDs {
		if id == tactic {
			return true
		}
	}
	return false
}

// Filter narrows ListTechniques results; zero value means no filtering
type Filter struct {
	TacticID             TacticID
	Platform             string
	IncludeSubtechniques bool
	RevokedOnly          bool
}
