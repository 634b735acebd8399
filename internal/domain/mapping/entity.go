package mapping

import (
	"time"

	"github.com/codexray/malapi-catalog/internal/domain/taxonomy"
)

// Type enum
type Type string

const (
	TypePrimary   Type = "primary"
	TypeSecondary Type = "secondary"
	TypeRelated   Type = "related"
)

// Metadata optional annotation attributes on a mapping
type Metadata struct {
	Type       Type    `json:"mapping_type,omitempty"`
	Confidence float64 `json:"confidence_score,omitempty"` // [0,1]
	Verified   bool    `json:"is_verified,omitempty"`
}

// Mapping associates a catalogued function with a technique it exhibits.
// The (FunctionID, TechniqueID) pair is unique.
type Mapping struct {
	FunctionID  int64                `json:"function_id"`
	TechniqueID taxonomy.TechniqueID `json:"technique_id"`
	Meta        Metadata             `json:"meta,omitempty"`
	CreatedAt   time.Time            `json:"created_at,omitempty"`
}
