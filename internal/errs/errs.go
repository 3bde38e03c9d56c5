// Package errs defines the closed error taxonomy shared by the
// pipeline, the store, and the service layer. Callers classify failures
// with errors.As against these types or errors.Is against the kind
// sentinels.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind sentinels. Every typed error below matches exactly one of these
// via errors.Is, so call sites can branch on kind without knowing the
// concrete type.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrRepositorySync = errors.New("repository sync error")
	ErrValidation     = errors.New("validation error")
	ErrFileOperation  = errors.New("file operation error")
	ErrParse          = errors.New("parse error")
	ErrDatabase       = errors.New("database error")
	ErrLockTimeout    = errors.New("lock timeout")
)

// ConfigurationError reports invalid or missing configuration.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configuration creates a ConfigurationError without a cause.
func Configuration(format string, args ...any) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// RepositorySyncError reports a failed git synchronization.
type RepositorySyncError struct {
	Repository string
	Message    string
	Err        error
}

func (e *RepositorySyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repository sync failed for %s: %s: %v", e.Repository, e.Message, e.Err)
	}
	return fmt.Sprintf("repository sync failed for %s: %s", e.Repository, e.Message)
}

func (e *RepositorySyncError) Unwrap() error { return e.Err }

func (e *RepositorySyncError) Is(target error) bool { return target == ErrRepositorySync }

// ValidationError reports input that failed a precondition check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation creates a ValidationError for the given field.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// FileOperationError reports a failed filesystem operation on a
// specific path.
type FileOperationError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileOperationError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileOperationError) Unwrap() error { return e.Err }

func (e *FileOperationError) Is(target error) bool { return target == ErrFileOperation }

// FileOp wraps err as a FileOperationError for op on path.
func FileOp(op, path string, err error) error {
	return &FileOperationError{Path: path, Op: op, Err: err}
}

// ParseError reports malformed document content.
type ParseError struct {
	File    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse failed for %s: %s: %v", e.File, e.Message, e.Err)
	}
	return fmt.Sprintf("parse failed for %s: %s", e.File, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// DatabaseError reports a failed warehouse operation.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func (e *DatabaseError) Is(target error) bool { return target == ErrDatabase }

// Database wraps err as a DatabaseError for op.
func Database(op string, err error) error {
	return &DatabaseError{Op: op, Err: err}
}

// LockTimeoutError reports that a shared-state lock could not be
// acquired within its deadline.
type LockTimeoutError struct {
	Resource string
	Timeout  time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("timed out acquiring %s lock after %s", e.Resource, e.Timeout)
}

func (e *LockTimeoutError) Is(target error) bool { return target == ErrLockTimeout }
