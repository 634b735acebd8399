package functions

import "context"

// PaginatedResult represents a paginated response with data and metadata
type PaginatedResult struct {
	Data       []*Function `json:"data"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	Total      int64       `json:"totalItems"`
	TotalPages int         `json:"totalPages"`
}

// Repository port (interface for persistence)
type Repository interface {
	Get(ctx context.Context, id int64) (*Function, error)
	Paginate(ctx context.Context, page, pageSize int) (PaginatedResult, error)
	Delete(ctx context.Context, id int64) error
}

// SourceStore port for the decompiled source objects
type SourceStore interface {
	Fetch(ctx context.Context, key string) (string, error)
	Upload(ctx context.Context, key string, body string) error
}
