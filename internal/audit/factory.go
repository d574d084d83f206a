package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/braidhq/engine/internal/database"
)

// Options selects and configures the audit backend.
type Options struct {
	// Backend is one of "supabase", "postgres" or "none".
	Backend     string
	Table       string
	SupabaseURL string
	SupabaseKey string
	PostgresDSN string
}

// NopStore discards every row. Used when auditing is disabled and as
// the fallback wiring in tests.
type NopStore struct{}

func (NopStore) Append(context.Context, *Row) error { return nil }

// OpenStore builds the configured audit store.
func OpenStore(opts Options, logger *slog.Logger) (Store, error) {
	switch opts.Backend {
	case "supabase":
		client, err := database.NewSupabaseClient(opts.SupabaseURL, opts.SupabaseKey)
		if err != nil {
			return nil, fmt.Errorf("audit: supabase store: %w", err)
		}
		return NewSupabaseStore(client, opts.Table, logger), nil
	case "postgres":
		db, err := database.OpenPostgres(opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("audit: postgres store: %w", err)
		}
		return NewPostgresStore(db, opts.Table, logger), nil
	case "", "none":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("audit: unknown backend %q", opts.Backend)
	}
}
