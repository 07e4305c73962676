package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a draftkeep error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"      // 507
	ErrCorruptEnvelope    ErrorCode = "CORRUPT_ENVELOPE"    // 422
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE" // 503
	ErrConflict           ErrorCode = "CONFLICT"            // 409
	ErrCancelled          ErrorCode = "CANCELLED"           // 499
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// DraftError represents a structured error with code, status, and details.
type DraftError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *DraftError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *DraftError {
	return &DraftError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a draft cannot be found.
func NewNotFound(key string) *DraftError {
	return &DraftError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("draft not found: %s", key),
		Details: map[string]any{"key": key},
	}
}

// NewQuotaExceeded creates a 507 error when the storage medium refuses a value for size.
func NewQuotaExceeded(max, actual int) *DraftError {
	return &DraftError{
		Code:    ErrQuotaExceeded,
		Status:  507,
		Message: fmt.Sprintf("storage quota exceeded: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewCorruptEnvelope creates a 422 error for a stored value that cannot be parsed.
func NewCorruptEnvelope(key string, err error) *DraftError {
	msg := fmt.Sprintf("corrupt draft envelope: %s", key)
	if err != nil {
		msg += ": " + err.Error()
	}
	return &DraftError{
		Code:    ErrCorruptEnvelope,
		Status:  422,
		Message: msg,
		Details: map[string]any{"key": key},
	}
}

// NewStorageUnavailable creates a 503 error when the storage medium cannot be used at all.
func NewStorageUnavailable(reason string) *DraftError {
	return &DraftError{
		Code:    ErrStorageUnavailable,
		Status:  503,
		Message: fmt.Sprintf("storage unavailable: %s", reason),
	}
}

// NewConflict creates a 409 error, e.g. an import colliding with an existing draft.
func NewConflict(msg string) *DraftError {
	return &DraftError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewCancelled creates a 499 error for an operation stopped by its context.
func NewCancelled(op string) *DraftError {
	return &DraftError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the original error goes into Details for logging.
func NewInternal(err error) *DraftError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &DraftError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error (or anything it wraps) is a DraftError with the given code.
func Is(err error, code ErrorCode) bool {
	var dErr *DraftError
	if stderrors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}
