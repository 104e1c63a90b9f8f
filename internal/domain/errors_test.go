package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type fakeDriverError struct {
	code string
}

func (e *fakeDriverError) Error() string    { return "driver error " + e.code }
func (e *fakeDriverError) SQLState() string { return e.code }

// TestDomainErrors_IsComparison tests that errors.Is() matches by error code
func TestDomainErrors_IsComparison(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		shouldNot error
	}{
		{
			name:      "pool_exhausted_matches_itself",
			err:       ErrPoolExhausted,
			target:    ErrPoolExhausted,
			shouldNot: ErrReleaseViolation,
		},
		{
			name:      "wrapped_pool_exhausted_matches",
			err:       PoolExhausted(context.DeadlineExceeded),
			target:    ErrPoolExhausted,
			shouldNot: ErrStatement,
		},
		{
			name:      "fmt_wrapped_pool_exhausted_matches",
			err:       fmt.Errorf("acquire: %w", PoolExhausted(errors.New("no idle connection"))),
			target:    ErrPoolExhausted,
			shouldNot: ErrRollback,
		},
		{
			name:      "statement_error_matches_sentinel",
			err:       &StatementError{Phase: PhaseExecute, Index: 2, Err: errors.New("boom")},
			target:    ErrStatement,
			shouldNot: ErrPoolExhausted,
		},
		{
			name:      "rollback_error_matches_sentinel",
			err:       &RollbackError{Cause: errors.New("first"), Err: errors.New("second")},
			target:    ErrRollback,
			shouldNot: ErrStatement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.target)
			}
			if errors.Is(tt.err, tt.shouldNot) {
				t.Errorf("errors.Is(%v, %v) = true, want false", tt.err, tt.shouldNot)
			}
		})
	}
}

func TestPoolExhausted_Unwraps(t *testing.T) {
	err := PoolExhausted(context.DeadlineExceeded)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("PoolExhausted should unwrap to its cause")
	}
	if !IsPoolExhausted(err) {
		t.Errorf("IsPoolExhausted(%v) = false, want true", err)
	}
	if IsPoolExhausted(context.DeadlineExceeded) {
		t.Errorf("a bare deadline is not pool exhaustion")
	}
}

func TestStatementError_Messages(t *testing.T) {
	cause := errors.New("duplicate key")

	tests := []struct {
		name     string
		err      *StatementError
		contains []string
	}{
		{
			name:     "indexed_statement",
			err:      &StatementError{Phase: PhaseExecute, Index: 1, Statement: NewStatement("INSERT INTO t VALUES ($1)", 1), Err: cause},
			contains: []string{"STATEMENT_FAILED", "execute statement 1", "INSERT INTO t VALUES ($1)", "duplicate key"},
		},
		{
			name:     "control_marker",
			err:      &StatementError{Phase: PhaseCommit, Index: -1, Statement: StmtCommit, Err: cause},
			contains: []string{"commit (COMMIT)", "duplicate key"},
		},
		{
			name:     "callback",
			err:      &StatementError{Phase: PhaseCallback, Index: -1, Err: cause},
			contains: []string{"callback failed", "duplicate key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("error %q does not contain %q", msg, want)
				}
			}
			if !errors.Is(tt.err, cause) {
				t.Errorf("StatementError should unwrap to its cause")
			}
		})
	}
}

func TestStatementError_RollbackDoesNotReplaceCause(t *testing.T) {
	cause := errors.New("constraint violation")
	err := &StatementError{
		Phase: PhaseExecute,
		Index: 0,
		Err:   cause,
		Rollback: &RollbackError{
			Cause: cause,
			Err:   errors.New("connection reset"),
		},
	}

	var wrapped error = fmt.Errorf("run: %w", err)

	if !errors.Is(wrapped, cause) {
		t.Errorf("original cause must stay reachable")
	}
	if errors.Is(wrapped, ErrRollback) {
		t.Errorf("rollback failure must not be reported as the error")
	}
	if code := GetErrorCode(wrapped); code != ErrorCodeStatementFailed {
		t.Errorf("GetErrorCode = %s, want %s", code, ErrorCodeStatementFailed)
	}
	if !strings.Contains(err.Rollback.Error(), "after: constraint violation") {
		t.Errorf("rollback error should name its cause: %q", err.Rollback.Error())
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "pool_exhausted", err: PoolExhausted(nil), want: ErrorCodePoolExhausted},
		{name: "statement", err: &StatementError{Err: errors.New("x")}, want: ErrorCodeStatementFailed},
		{name: "rollback", err: &RollbackError{Err: errors.New("x")}, want: ErrorCodeRollbackFailed},
		{name: "release_violation", err: ErrReleaseViolation, want: ErrorCodeReleaseViolation},
		{name: "validation", err: NewDomainError(ErrorCodeValidationFailed, "bad input"), want: ErrorCodeValidationFailed},
		{name: "unknown", err: errors.New("plain"), want: ""},
		{name: "nil", err: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.want {
				t.Errorf("GetErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestSQLStateOf(t *testing.T) {
	driverErr := &fakeDriverError{code: "40001"}

	if got := SQLStateOf(fmt.Errorf("exec: %w", driverErr)); got != "40001" {
		t.Errorf("SQLStateOf = %q, want 40001", got)
	}
	if got := SQLStateOf(errors.New("plain")); got != "" {
		t.Errorf("SQLStateOf(plain) = %q, want empty", got)
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorCodeValidationFailed, "bad statement").WithDetail("index", 3)

	if err.Details["index"] != 3 {
		t.Errorf("detail not recorded: %v", err.Details)
	}
	if err.Error() != "VALIDATION_FAILED: bad statement" {
		t.Errorf("unexpected message %q", err.Error())
	}

	wrapped := WrapError(ErrorCodeInternalError, "unexpected", errors.New("io"))
	if wrapped.Error() != "INTERNAL_ERROR: unexpected: io" {
		t.Errorf("unexpected message %q", wrapped.Error())
	}
}
