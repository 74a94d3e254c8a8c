package chi

import (
	"encoding/json"

	"github.com/kailas-cloud/coursedex/internal/domain/event"
)

// ErrorCode is the machine-readable code of an error response.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest     ErrorCode = "bad_request"
	ErrorCodeUnauthorized   ErrorCode = "unauthorized"
	ErrorCodeNotFound       ErrorCode = "not_found"
	ErrorCodeUnknownKind    ErrorCode = "unknown_collection"
	ErrorCodeValidation     ErrorCode = "validation_failed"
	ErrorCodeRateLimited    ErrorCode = "rate_limited"
	ErrorCodeInternalError  ErrorCode = "internal_error"
	ErrorCodeNotImplemented ErrorCode = "not_implemented"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HookRequest is the body of the lifecycle hooks. Created and deleted carry
// course; updated carries before and after.
type HookRequest struct {
	EventID string          `json:"event_id,omitempty"`
	Course  json.RawMessage `json:"course,omitempty"`
	Before  json.RawMessage `json:"before,omitempty"`
	After   json.RawMessage `json:"after,omitempty"`
}

// HookResponse wraps the per-kind outcome of a lifecycle event.
type HookResponse struct {
	event.Report
	Failed bool `json:"failed"`
}
