// Package audit writes one structured row per dispatch to the audit
// store. Writes happen off the dispatch goroutine and failures are
// logged and swallowed; losing a row is preferable to failing a call.
package audit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/braidhq/engine/internal/core"
	"github.com/braidhq/engine/internal/registry"
)

// maxErrorLen caps the persisted error message.
const maxErrorLen = 500

// appendTimeout bounds one store write.
const appendTimeout = 5 * time.Second

// Row is the persisted audit record. The result payload itself is
// never stored, only a placeholder, so PII stays out of the log.
type Row struct {
	ToolName        string         `json:"tool_name"`
	BraidFunction   string         `json:"braid_function"`
	BraidFile       string         `json:"braid_file"`
	PolicyName      string         `json:"policy_name"`
	ToolClass       string         `json:"tool_class"`
	TenantID        string         `json:"tenant_id"`
	UserID          *string        `json:"user_id"`
	UserEmail       string         `json:"user_email,omitempty"`
	UserRole        string         `json:"user_role"`
	InputArgs       map[string]any `json:"input_args"`
	ResultStatus    string         `json:"result_status"`
	ResultValue     map[string]any `json:"result_value,omitempty"`
	ErrorType       string         `json:"error_type,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
	CacheHit        bool           `json:"cache_hit"`
	EntityType      string         `json:"entity_type,omitempty"`
	EntityID        string         `json:"entity_id,omitempty"`
	CreatedAt       string         `json:"created_at"`
}

// Entry is the dispatch context the sink turns into a Row. Tool may be
// nil when the registry lookup itself failed; ToolName still records
// what the caller asked for.
type Entry struct {
	Tool      *registry.Tool
	ToolName  string
	ToolClass string
	Tenant    core.TenantRecord
	UserID    string
	UserEmail string
	UserRole  core.Role
	Args      core.Args
	Result    core.Result
	Duration  time.Duration
	CacheHit  bool
}

// Store is the append-only sink backend.
type Store interface {
	Append(ctx context.Context, row *Row) error
}

// Sink builds rows and appends them asynchronously.
type Sink struct {
	store  Store
	logger *slog.Logger
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewSink(store Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		store:  store,
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
}

// Record persists the entry in the background.
func (s *Sink) Record(e Entry) {
	row := s.buildRow(e)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		defer cancel()
		if err := s.store.Append(ctx, row); err != nil {
			s.logger.Warn("audit row dropped", "tool", row.ToolName, "tenant", row.TenantID, "error", err)
		}
	}()
}

// Drain waits for all in-flight writes, used at shutdown and in tests.
func (s *Sink) Drain() {
	s.wg.Wait()
}

func (s *Sink) buildRow(e Entry) *Row {
	tool := e.Tool
	if tool == nil {
		tool = &registry.Tool{Name: e.ToolName}
	}
	row := &Row{
		ToolName:        tool.Name,
		BraidFunction:   tool.FunctionName,
		BraidFile:       tool.SourceFile,
		PolicyName:      tool.Policy,
		ToolClass:       e.ToolClass,
		TenantID:        e.Tenant.ID,
		UserEmail:       e.UserEmail,
		UserRole:        string(e.UserRole),
		InputArgs:       e.Args,
		ExecutionTimeMS: e.Duration.Milliseconds(),
		CacheHit:        e.CacheHit,
		CreatedAt:       s.now().UTC().Format(time.RFC3339Nano),
	}

	// user_id must be a uuid. Chat callers sometimes put the email in
	// that slot; migrate it instead of storing a malformed id.
	if e.UserID != "" {
		if uuid.Validate(e.UserID) == nil {
			id := e.UserID
			row.UserID = &id
		} else if row.UserEmail == "" {
			row.UserEmail = e.UserID
		}
	}

	if e.Result.Success {
		row.ResultStatus = "success"
		row.ResultValue = map[string]any{"summary": "Result logged"}
	} else {
		row.ResultStatus = "error"
		if e.Result.Error != nil {
			row.ErrorType = string(e.Result.Error.Kind)
			row.ErrorMessage = truncate(e.Result.Error.Message, maxErrorLen)
		}
	}

	row.EntityType = entityFromTool(tool.Name)
	row.EntityID = entityID(row.EntityType, e.Args, e.Result)
	return row
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// entityFromTool maps a tool name to the business entity it touches.
func entityFromTool(tool string) string {
	switch {
	case strings.Contains(tool, "bizdev"):
		return "bizdev"
	case strings.Contains(tool, "lead"):
		return "lead"
	case strings.Contains(tool, "account"):
		return "account"
	case strings.Contains(tool, "contact"):
		return "contact"
	case strings.Contains(tool, "opportunit"):
		return "opportunity"
	case strings.Contains(tool, "activit"):
		return "activity"
	case strings.Contains(tool, "note"):
		return "note"
	default:
		return ""
	}
}

// entityID pulls the record id out of the arguments, falling back to a
// single-entity result payload.
func entityID(entity string, args core.Args, result core.Result) string {
	if entity == "" {
		return ""
	}
	idField := entity + "_id"
	if entity == "bizdev" {
		idField = "source_id"
	}
	if s, ok := args.String(idField); ok && s != "" {
		return s
	}
	if s, ok := args.String("id"); ok && s != "" {
		return s
	}
	if data, ok := result.Data.(map[string]any); ok {
		if s, ok := data["id"].(string); ok {
			return s
		}
	}
	return ""
}
