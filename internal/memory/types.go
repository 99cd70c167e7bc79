package memory

import (
	"context"
	"time"
)

// Record is a single remembered fact.
type Record struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpdateFields carries a partial update. Nil fields are left untouched.
type UpdateFields struct {
	Description *string
	Content     *string
}

// Store persists and retrieves memory records. Iteration order for All and
// Search is insertion order; relevance ranking depends on that for stable
// tie-breaks.
type Store interface {
	Create(ctx context.Context, description, content string) (Record, error)

	// Get returns nil when no record has the given id.
	Get(ctx context.Context, id string) (*Record, error)

	All(ctx context.Context) ([]Record, error)

	// Update applies the non-nil fields and returns the updated record, or
	// nil when the id does not exist.
	Update(ctx context.Context, id string, fields UpdateFields) (*Record, error)

	// Delete reports whether a record existed and was removed.
	Delete(ctx context.Context, id string) (bool, error)

	// Search returns every record whose description or content contains
	// query as a case-insensitive substring.
	Search(ctx context.Context, query string) ([]Record, error)

	Close() error
}
