// Package errors provides the structured error system for bucketfs with error codes, categories, and context.
package errors

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for bucketfs operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"

	// Storage Backend Errors
	ErrCodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeBucketNotFound ErrorCode = "BUCKET_NOT_FOUND"
	ErrCodeStorageWrite   ErrorCode = "STORAGE_WRITE"
	ErrCodeStorageRead    ErrorCode = "STORAGE_READ"
	ErrCodeAccessDenied   ErrorCode = "ACCESS_DENIED"

	// Filesystem Errors
	ErrCodePathInvalid       ErrorCode = "PATH_INVALID"
	ErrCodeDirectoryNotEmpty ErrorCode = "DIRECTORY_NOT_EMPTY"

	// Operation Errors
	ErrCodeBulkOperation ErrorCode = "OPERATION_BULK_FAILED"
	ErrCodeUploadFailed  ErrorCode = "OPERATION_UPLOAD_FAILED"
	ErrCodeUnsupported   ErrorCode = "OPERATION_UNSUPPORTED"
	ErrCodeStreamClosed  ErrorCode = "OPERATION_STREAM_CLOSED"

	// Internal System Errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryStorage       ErrorCategory = "storage"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// Sentinel errors usable with errors.Is. Matching is by code, so any
// ObjectFSError carrying the same code matches its sentinel.
var (
	ErrInvalidPath          = &ObjectFSError{Code: ErrCodePathInvalid}
	ErrObjectNotFound       = &ObjectFSError{Code: ErrCodeObjectNotFound}
	ErrDirectoryNotEmpty    = &ObjectFSError{Code: ErrCodeDirectoryNotEmpty}
	ErrBulkOperation        = &ObjectFSError{Code: ErrCodeBulkOperation}
	ErrUploadFailed         = &ObjectFSError{Code: ErrCodeUploadFailed}
	ErrUnsupportedOperation = &ObjectFSError{Code: ErrCodeUnsupported}
	ErrStreamClosed         = &ObjectFSError{Code: ErrCodeStreamClosed}
)

// ObjectFSError represents a structured error with context and metadata.
type ObjectFSError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`
}

// Error implements the error interface.
func (e *ObjectFSError) Error() string {
	var b strings.Builder
	if e.Component != "" {
		if e.Operation != "" {
			fmt.Fprintf(&b, "[%s:%s] ", e.Component, e.Operation)
		} else {
			fmt.Fprintf(&b, "[%s] ", e.Component)
		}
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if p, ok := e.Context["path"]; ok {
		fmt.Fprintf(&b, " (path=%s)", p)
	}
	if k, ok := e.Context["key"]; ok {
		fmt.Fprintf(&b, " (key=%s)", k)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *ObjectFSError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *ObjectFSError) Is(target error) bool {
	if objectFSErr, ok := target.(*ObjectFSError); ok {
		return e.Code == objectFSErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *ObjectFSError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("ObjectFSError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new error with default values.
func NewError(code ErrorCode, message string) *ObjectFSError {
	return &ObjectFSError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Context:   make(map[string]string),
	}
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "OBJECT_") || strings.HasPrefix(codeStr, "BUCKET_") ||
		strings.HasPrefix(codeStr, "STORAGE_") || strings.HasPrefix(codeStr, "ACCESS_"):
		return CategoryStorage
	case strings.HasPrefix(codeStr, "PATH_") || strings.HasPrefix(codeStr, "DIRECTORY_"):
		return CategoryFilesystem
	case strings.HasPrefix(codeStr, "OPERATION_"):
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// WithContext adds contextual information to an error
func (e *ObjectFSError) WithContext(key, value string) *ObjectFSError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *ObjectFSError) WithDetail(key string, value interface{}) *ObjectFSError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *ObjectFSError) WithComponent(component string) *ObjectFSError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *ObjectFSError) WithOperation(operation string) *ObjectFSError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *ObjectFSError) WithCause(cause error) *ObjectFSError {
	e.Cause = cause
	return e
}

// InvalidPath builds a PATH_INVALID error for path.
func InvalidPath(path, reason string) *ObjectFSError {
	return NewError(ErrCodePathInvalid, reason).WithContext("path", path)
}

// NotFound builds an OBJECT_NOT_FOUND error for key.
func NotFound(key string, cause error) *ObjectFSError {
	return NewError(ErrCodeObjectNotFound, "object not found").
		WithContext("key", key).
		WithCause(cause)
}

// DirectoryNotEmpty builds a DIRECTORY_NOT_EMPTY error for path.
func DirectoryNotEmpty(path string) *ObjectFSError {
	return NewError(ErrCodeDirectoryNotEmpty, "directory is not empty").WithContext("path", path)
}

// UploadFailed builds an OPERATION_UPLOAD_FAILED error for key.
func UploadFailed(key, uploadID string, cause error) *ObjectFSError {
	e := NewError(ErrCodeUploadFailed, "upload failed").
		WithContext("key", key).
		WithCause(cause)
	if uploadID != "" {
		e.WithDetail("upload_id", uploadID)
	}
	return e
}

// Unsupported builds an OPERATION_UNSUPPORTED error naming op.
func Unsupported(op, reason string) *ObjectFSError {
	return NewError(ErrCodeUnsupported, reason).WithOperation(op)
}

// KeyFailure records why a single key failed within a bulk operation.
type KeyFailure struct {
	Key string
	Err error
}

// BulkOperationError aggregates per-key failures of a batched operation.
// Failures are kept sorted by key.
type BulkOperationError struct {
	Operation string
	Path      string
	Attempted int
	Failures  []KeyFailure
}

// NewBulkOperationError returns a BulkOperationError with failures sorted by key.
func NewBulkOperationError(op, path string, attempted int, failures []KeyFailure) *BulkOperationError {
	sorted := make([]KeyFailure, len(failures))
	copy(sorted, failures)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	return &BulkOperationError{
		Operation: op,
		Path:      path,
		Attempted: attempted,
		Failures:  sorted,
	}
}

// Error implements the error interface.
func (e *BulkOperationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s: %d of %d keys failed", ErrCodeBulkOperation, e.Operation, e.Path,
		len(e.Failures), e.Attempted)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %s: %v", f.Key, f.Err)
	}
	return b.String()
}

// Is matches ErrBulkOperation.
func (e *BulkOperationError) Is(target error) bool {
	if objectFSErr, ok := target.(*ObjectFSError); ok {
		return objectFSErr.Code == ErrCodeBulkOperation
	}
	return false
}

// Unwrap exposes every per-key cause to errors.Is and errors.As.
func (e *BulkOperationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// FailedKeys returns the failed keys in sorted order.
func (e *BulkOperationError) FailedKeys() []string {
	keys := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		keys = append(keys, f.Key)
	}
	return keys
}
