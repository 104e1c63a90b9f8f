package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	ErrorCodePoolExhausted    ErrorCode = "POOL_EXHAUSTED"
	ErrorCodeStatementFailed  ErrorCode = "STATEMENT_FAILED"
	ErrorCodeRollbackFailed   ErrorCode = "ROLLBACK_FAILED"
	ErrorCodeReleaseViolation ErrorCode = "RELEASE_VIOLATION"
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrorCodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code, so wrapped instances
// still compare equal to the package-level sentinels.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

var (
	// ErrPoolExhausted means no connection became available within the
	// pool's wait policy. The unit of work never started.
	ErrPoolExhausted = NewDomainError(ErrorCodePoolExhausted, "no connection available in pool")

	// ErrStatement matches every *StatementError via errors.Is
	ErrStatement = NewDomainError(ErrorCodeStatementFailed, "statement rejected by database")

	// ErrRollback matches every *RollbackError via errors.Is
	ErrRollback = NewDomainError(ErrorCodeRollbackFailed, "rollback failed")

	// ErrReleaseViolation is reported when a leased connection is released more than once
	ErrReleaseViolation = NewDomainError(ErrorCodeReleaseViolation, "connection released more than once")
)

// PoolExhausted wraps the acquire failure that caused pool exhaustion
func PoolExhausted(err error) *DomainError {
	return WrapError(ErrorCodePoolExhausted, ErrPoolExhausted.Message, err)
}

// StatementError is a statement (including BEGIN and COMMIT) rejected by the
// database, or a callback failure inside a unit of work.
type StatementError struct {
	Phase     Phase
	Index     int // position in the statement list, -1 for control markers and callbacks
	Statement Statement
	SQLState  string
	Err       error

	// Rollback is set when the rollback issued after this failure also failed.
	// It never replaces Err as the reported cause.
	Rollback *RollbackError
}

func (e *StatementError) Error() string {
	switch {
	case e.Phase == PhaseCallback:
		return fmt.Sprintf("%s: callback failed: %v", ErrorCodeStatementFailed, e.Err)
	case e.Index >= 0:
		return fmt.Sprintf("%s: %s statement %d (%s): %v", ErrorCodeStatementFailed, e.Phase, e.Index, e.Statement.SQL, e.Err)
	default:
		return fmt.Sprintf("%s: %s (%s): %v", ErrorCodeStatementFailed, e.Phase, e.Statement.SQL, e.Err)
	}
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

func (e *StatementError) Is(target error) bool {
	return target == ErrStatement
}

// RollbackError is a failed rollback following a prior failure
type RollbackError struct {
	Cause error // the failure that triggered the rollback
	Err   error // the rollback's own error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%s: %v (after: %v)", ErrorCodeRollbackFailed, e.Err, e.Cause)
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}

func (e *RollbackError) Is(target error) bool {
	return target == ErrRollback
}

// sqlStater is implemented by *pgconn.PgError and *pq.Error
type sqlStater interface {
	SQLState() string
}

// SQLStateOf returns the SQLSTATE code carried by a driver error, or ""
func SQLStateOf(err error) string {
	var s sqlStater
	if errors.As(err, &s) {
		return s.SQLState()
	}
	return ""
}

// IsPoolExhausted reports whether err is a pool exhaustion failure
func IsPoolExhausted(err error) bool {
	return errors.Is(err, ErrPoolExhausted)
}

// IsStatementError reports whether err is a *StatementError
func IsStatementError(err error) bool {
	var stmtErr *StatementError
	return errors.As(err, &stmtErr)
}

// GetErrorCode extracts the error code from an error, returns empty string if unknown
func GetErrorCode(err error) ErrorCode {
	var stmtErr *StatementError
	if errors.As(err, &stmtErr) {
		return ErrorCodeStatementFailed
	}
	var rbErr *RollbackError
	if errors.As(err, &rbErr) {
		return ErrorCodeRollbackFailed
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}
