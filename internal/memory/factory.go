package memory

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise the
// volatile in-memory store.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
