package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
)

// PostgresStore appends rows over a direct SQL connection, for
// deployments that skip the Supabase REST layer.
type PostgresStore struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

func NewPostgresStore(db *sql.DB, table string, logger *slog.Logger) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:     db,
		table:  table,
		logger: logger.With("component", "audit_store", "backend", "postgres"),
	}
}

func (s *PostgresStore) Append(ctx context.Context, row *Row) error {
	args, err := json.Marshal(row.InputArgs)
	if err != nil {
		args = []byte("{}")
	}
	var resultValue []byte
	if row.ResultValue != nil {
		resultValue, err = json.Marshal(row.ResultValue)
		if err != nil {
			resultValue = nil
		}
	}

	query := fmt.Sprintf(`INSERT INTO %s (
		tool_name, braid_function, braid_file, policy_name, tool_class,
		tenant_id, user_id, user_email, user_role, input_args,
		result_status, result_value, error_type, error_message,
		execution_time_ms, cache_hit, entity_type, entity_id, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		row.ToolName, row.BraidFunction, row.BraidFile, row.PolicyName, row.ToolClass,
		row.TenantID, row.UserID, nullable(row.UserEmail), row.UserRole, args,
		row.ResultStatus, resultValue, nullable(row.ErrorType), nullable(row.ErrorMessage),
		row.ExecutionTimeMS, row.CacheHit, nullable(row.EntityType), nullable(row.EntityID), row.CreatedAt,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
