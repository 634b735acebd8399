package functions

import "time"

// Status enum
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusPending Status = "pending"
)

// Function is a reverse-engineered function sample from the catalogue.
// SourceKey points at the decompiled C++ source in the object store.
type Function struct {
	ID           int64     `json:"id"`
	HashID       string    `json:"hash_id"`
	Alias        string    `json:"alias"`
	RootFunction string    `json:"root_function,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	SourceKey    string    `json:"source_key,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}
