package sandbox

import (
	"encoding/json"

	"github.com/isdmx/coderunner/metrics"
)

// ErrorKind classifies a failed execution.
type ErrorKind string

// Error kinds reported in an ExecutionResult.
const (
	KindUnsupportedLanguage     ErrorKind = "unsupported_language"
	KindWorkspaceNotFound       ErrorKind = "workspace_not_found"
	KindInvalidRequest          ErrorKind = "invalid_request"
	KindContainerInfrastructure ErrorKind = "container_infrastructure"
)

// outcome maps the kind to the metrics outcome label.
func (k ErrorKind) outcome() string {
	switch k {
	case KindUnsupportedLanguage:
		return metrics.OutcomeUnsupportedLanguage
	case KindWorkspaceNotFound:
		return metrics.OutcomeWorkspaceNotFound
	case KindInvalidRequest:
		return metrics.OutcomeInvalidRequest
	default:
		return metrics.OutcomeInfrastructureError
	}
}

// ExecutionError describes why an execution produced no output.
type ExecutionError struct {
	Kind    ErrorKind
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// ExecutionResult is either a success carrying the program's combined output
// or a failure carrying an ExecutionError, never both. The zero value is a
// success with empty output.
type ExecutionResult struct {
	output  string
	failure *ExecutionError
}

// Success returns a successful result with the given output.
func Success(output string) ExecutionResult {
	return ExecutionResult{output: output}
}

// Failure returns a failed result.
func Failure(kind ErrorKind, message string) ExecutionResult {
	return ExecutionResult{failure: &ExecutionError{Kind: kind, Message: message}}
}

// Succeeded reports whether the execution produced output.
func (r ExecutionResult) Succeeded() bool {
	return r.failure == nil
}

// Output returns the combined output and true for a success, or "" and false
// for a failure.
func (r ExecutionResult) Output() (string, bool) {
	if r.failure != nil {
		return "", false
	}
	return r.output, true
}

// Err returns the failure, or nil for a success.
func (r ExecutionResult) Err() *ExecutionError {
	return r.failure
}

type resultJSON struct {
	Output *string `json:"output"`
	Error  *string `json:"error"`
}

// MarshalJSON encodes the result as {"output": ..., "error": ...} with exactly
// one of the two fields set and the other null.
func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	var out resultJSON
	if r.failure != nil {
		msg := r.failure.Message
		out.Error = &msg
	} else {
		output := r.output
		out.Output = &output
	}
	return json.Marshal(out)
}
