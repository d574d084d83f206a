package audit

import (
	"context"
	"log/slog"

	"github.com/braidhq/engine/internal/database"
)

// DefaultTable is the audit table name in Supabase and Postgres.
const DefaultTable = "tool_audit_log"

// SupabaseStore appends rows through the Supabase REST API.
type SupabaseStore struct {
	client *database.SupabaseClient
	table  string
	logger *slog.Logger
}

func NewSupabaseStore(client *database.SupabaseClient, table string, logger *slog.Logger) *SupabaseStore {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SupabaseStore{
		client: client,
		table:  table,
		logger: logger.With("component", "audit_store", "backend", "supabase"),
	}
}

func (s *SupabaseStore) Append(ctx context.Context, row *Row) error {
	_ = ctx // supabase-go does not thread contexts through Execute
	return s.client.InsertRow(s.table, row)
}
