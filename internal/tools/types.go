package tools

// Status indicates tool execution outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Error codes carried in Result.Error for model and client consumption.
const (
	// ErrCodeValidation indicates invalid input, rejected before any backend call.
	ErrCodeValidation = "validation"
	// ErrCodeNotFound indicates the referenced entity does not exist.
	ErrCodeNotFound = "not_found"
	// ErrCodeExecution indicates the backend call or snippet run failed.
	ErrCodeExecution = "execution"
	// ErrCodeTimeout indicates the call exceeded its time budget.
	ErrCodeTimeout = "timeout"
	// ErrCodeUnknownTool indicates a dispatch to a name the registry does not know.
	ErrCodeUnknownTool = "unknown_tool"
)

// Result is the uniform envelope every tool returns. Business failures are
// reported in Error with Status set to StatusError; a Go error from a tool
// handler is reserved for infrastructure problems (context cancellation).
type Result struct {
	Status Status `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// Error is a structured tool error the model can understand and correct.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil tool error>"
	}
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// errorResult builds an error Result.
func errorResult(code, message string) Result {
	return Result{Status: StatusError, Error: &Error{Code: code, Message: message}}
}

// Invocation records one tool call for the response audit trail.
type Invocation struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input,omitempty"`
}

// Output pairs a tool name with its structured result data.
type Output struct {
	Tool string `json:"tool"`
	Data any    `json:"data,omitempty"`
}
