// Package errors provides structured error types for stratoctl.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	ErrCodeParse               ErrorCode = "PARSE_ERROR"
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeUnresolvedReference ErrorCode = "UNRESOLVED_REFERENCE"
	ErrCodeTypeMismatch        ErrorCode = "TYPE_MISMATCH"
	ErrCodeCycle               ErrorCode = "DEPENDENCY_CYCLE"
	ErrCodeProvider            ErrorCode = "PROVIDER_ERROR"
	ErrCodeDrift               ErrorCode = "STATE_DRIFT"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeConflict            ErrorCode = "CONFLICT"
	ErrCodeLocked              ErrorCode = "STATE_LOCKED"
	ErrCodeBackend             ErrorCode = "BACKEND_ERROR"
	ErrCodeTimeout             ErrorCode = "TIMEOUT"
)

// Error is the base error type for stratoctl
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// ParseError creates a configuration parse error. Parse errors are fatal and
// abort before any planning.
func ParseError(filePath string, err error) *Error {
	return &Error{
		Code:    ErrCodeParse,
		Message: fmt.Sprintf("failed to parse %s", filePath),
		Cause:   err,
		Details: map[string]interface{}{
			"file": filePath,
		},
	}
}

// UnresolvedReferenceError creates an error for an expression that names an
// identity not present in the configuration. The offending resource identity
// and attribute are always recorded.
func UnresolvedReferenceError(identity, attribute, reference string) *Error {
	return &Error{
		Code:    ErrCodeUnresolvedReference,
		Message: fmt.Sprintf("%s: attribute %q references unknown identity %q", identity, attribute, reference),
		Details: map[string]interface{}{
			"identity":  identity,
			"attribute": attribute,
			"reference": reference,
		},
	}
}

// TypeMismatchError creates an error for a value whose type conflicts with the
// attribute's declared constraint.
func TypeMismatchError(identity, attribute, wantType string, cause error) *Error {
	return &Error{
		Code:    ErrCodeTypeMismatch,
		Message: fmt.Sprintf("%s: attribute %q is not convertible to %s", identity, attribute, wantType),
		Cause:   cause,
		Details: map[string]interface{}{
			"identity":  identity,
			"attribute": attribute,
			"want_type": wantType,
		},
	}
}

// CycleError creates an error for a reference cycle in the dependency graph.
// At least one cycle member is named in the message.
func CycleError(members []string) *Error {
	msg := "configuration contains a reference cycle"
	if len(members) > 0 {
		msg = fmt.Sprintf("configuration contains a reference cycle involving %s", members[0])
	}
	return &Error{
		Code:    ErrCodeCycle,
		Message: msg,
		Details: map[string]interface{}{
			"members": members,
		},
	}
}

// ProviderError creates an error for a failed provider operation. Provider
// errors are scoped to the dependent subtree and do not abort sibling branches.
func ProviderError(identity, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeProvider,
		Message: fmt.Sprintf("provider %s failed for %s", operation, identity),
		Cause:   err,
		Details: map[string]interface{}{
			"identity":  identity,
			"operation": operation,
		},
	}
}

// DriftError creates an error for actual state that diverged from the last
// recorded state outside the engine's own operations.
func DriftError(identity string, attributes []string) *Error {
	return &Error{
		Code:    ErrCodeDrift,
		Message: fmt.Sprintf("recorded state for %s no longer matches the real resource", identity),
		Details: map[string]interface{}{
			"identity":   identity,
			"attributes": attributes,
		},
	}
}

// NotFoundError creates a not found error
func NotFoundError(resourceType, name string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resourceType, name),
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"name":          name,
		},
	}
}

// ValidationError creates a validation error
func ValidationError(message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// BackendError creates a backend error
func BackendError(message string, err error) *Error {
	return &Error{
		Code:    ErrCodeBackend,
		Message: message,
		Cause:   err,
	}
}

// LockInfo contains metadata about a lock
type LockInfo struct {
	ID        string
	Path      string
	Who       string
	Operation string
	Created   time.Time
}

// StateLocked creates a state locked error
func StateLocked(lockInfo LockInfo) *Error {
	return &Error{
		Code:    ErrCodeLocked,
		Message: "state is locked",
		Details: map[string]interface{}{
			"lock_id":   lockInfo.ID,
			"locked_by": lockInfo.Who,
			"operation": lockInfo.Operation,
			"created":   lockInfo.Created,
		},
	}
}

// Is checks if the error matches the given code
func Is(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}
