package taxonomy

import "context"

// Repository port (interface for persistence)
type Repository interface {
	SelectTactics(ctx context.Context) ([]*Tactic, error)
	GetTactic(ctx context.Context, id TacticID) (*Tactic, error)
	SelectTechniques(ctx context.Context, f Filter) ([]*Technique, error)
	GetTechnique(ctx context.Context, id TechniqueID) (*Technique, error)
	SelectSubTechniques(ctx context.Context, parent TechniqueID) ([]*Technique, error)

	// Load replaces the whole taxonomy in one batch; only the importer
	// collaborator calls this, never the request path.
	Load(ctx context.Context, tactics []*Tactic, techniques []*Technique) error
}
