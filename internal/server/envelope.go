package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/skeinhq/skein/internal/engine"
	"github.com/skeinhq/skein/internal/graph"
)

// Error codes carried in the error envelope.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeTaskNotFound       = "TASK_NOT_FOUND"
	CodeProjectNotFound    = "PROJECT_NOT_FOUND"
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"
	CodeInvalidTaskType    = "INVALID_TASK_TYPE"
	CodeDependencyConflict = "DEPENDENCY_CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL"
)

// errorEnvelope is the uniform error body returned by every endpoint.
type errorEnvelope struct {
	ErrorCode string    `json:"error_code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{
		ErrorCode: code,
		Message:   message,
		Details:   details,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}

// writeEngineError classifies an engine error into the envelope. Errors the
// sentinels do not cover fall back to the given status and code, which lets
// request-scoped endpoints report malformed task sets as INVALID_REQUEST while
// query endpoints keep INTERNAL for the unexpected.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error, fallbackStatus int, fallbackCode string) {
	status, code := fallbackStatus, fallbackCode
	switch {
	case errors.Is(err, engine.ErrProjectNotFound):
		status, code = http.StatusNotFound, CodeProjectNotFound
	case errors.Is(err, engine.ErrSessionNotFound):
		status, code = http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, graph.ErrUnknownTask):
		status, code = http.StatusNotFound, CodeTaskNotFound
	case errors.Is(err, graph.ErrCycleDetected):
		status, code = http.StatusConflict, CodeCircularDependency
	case errors.Is(err, graph.ErrSelfDependency):
		status, code = http.StatusBadRequest, CodeInvalidRequest
	}
	writeError(w, r, status, code, err.Error(), nil)
}
