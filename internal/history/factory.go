package history

import (
	"context"
	"strings"
)

const (
	ModeMemory   = "memory"
	ModePostgres = "postgres"
)

// NewStore creates a postgres-backed store when databaseURL is set, otherwise
// in-memory. The returned mode names the backend for readiness reporting.
func NewStore(ctx context.Context, databaseURL string) (Store, string, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), ModeMemory, nil
	}
	s, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return nil, "", err
	}
	return s, ModePostgres, nil
}
