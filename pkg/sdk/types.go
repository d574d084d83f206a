package sdk

// Error kinds the engine returns. Compare against Result.Error.Type.
const (
	KindAuthorization     = "AuthorizationError"
	KindUnknownTool       = "UnknownTool"
	KindValidation        = "ValidationError"
	KindInsufficientPerms = "InsufficientPermissions"
	KindRateLimited       = "RateLimitExceeded"
	KindConfirmation      = "ConfirmationRequired"
	KindExecution         = "ExecutionError"
	KindNotFound          = "NotFound"
	KindPermissionDenied  = "PermissionDenied"
	KindNetwork           = "NetworkError"
)

// User identifies the person the agent host acts for. The engine takes
// the privilege role from the API key, never from this struct.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ResultError describes a refused or failed dispatch.
type ResultError struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Operation  string `json:"operation,omitempty"`
	Entity     string `json:"entity,omitempty"`
	ID         string `json:"id,omitempty"`
	Field      string `json:"field,omitempty"`
	Code       int    `json:"code,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"` // seconds, set when Type is RateLimitExceeded
}

// Result is the engine's dispatch envelope. Success=true carries Data,
// Success=false carries Error.
type Result struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ResultError `json:"error,omitempty"`
}

// Is reports whether the result failed with the given kind.
func (r *Result) Is(kind string) bool {
	return !r.Success && r.Error != nil && r.Error.Type == kind
}

// Execution is the response of POST /api/tools/execute: the dispatch
// result plus a one-line natural language summary for the model.
type Execution struct {
	Result  Result `json:"result"`
	Summary string `json:"summary"`
}

// Call is one entry of a batch execution.
type Call struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// StepLog is one chain step outcome.
type StepLog struct {
	ID         string                 `json:"id"`
	Tool       string                 `json:"tool"`
	Args       map[string]interface{} `json:"args,omitempty"`
	Status     string                 `json:"status"`
	Reason     string                 `json:"reason,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMS int64                  `json:"execution_time_ms"`
	Timestamp  string                 `json:"timestamp"`
}

// ChainOutcome is the response of POST /api/chains/{name}/execute.
// Chain-level failures arrive inside this envelope, not as HTTP errors:
// FailedStep, StepError and RolledBack describe what broke and whether
// compensation ran.
type ChainOutcome struct {
	Success      bool                   `json:"success"`
	ChainName    string                 `json:"chainName"`
	Input        map[string]interface{} `json:"input"`
	Results      map[string]interface{} `json:"results,omitempty"`
	ExecutionLog []StepLog              `json:"executionLog,omitempty"`
	CompletedAt  string                 `json:"completedAt,omitempty"`
	Error        *ResultError           `json:"error,omitempty"`
	FailedStep   string                 `json:"failedStep,omitempty"`
	StepError    *ResultError           `json:"stepError,omitempty"`
	RolledBack   bool                   `json:"rolledBack,omitempty"`
}

// Tool is one registry entry as listed by GET /api/tools.
type Tool struct {
	Name         string `json:"name"`
	SourceFile   string `json:"source_file"`
	FunctionName string `json:"function_name"`
	Policy       string `json:"policy"`
}
