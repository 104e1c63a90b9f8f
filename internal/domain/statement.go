package domain

import (
	"fmt"
	"strings"
)

// Statement is a single request sent to the database: a query, a command,
// or a transaction-control marker.
type Statement struct {
	SQL  string
	Args []any
}

// NewStatement builds a Statement from SQL text and positional arguments
func NewStatement(sql string, args ...any) Statement {
	return Statement{SQL: sql, Args: args}
}

// String returns the statement text with its arguments for logging
func (s Statement) String() string {
	if len(s.Args) == 0 {
		return s.SQL
	}
	return fmt.Sprintf("%s %v", s.SQL, s.Args)
}

// Transaction-control markers. They travel over the leased connection as
// ordinary statements.
var (
	StmtBegin    = Statement{SQL: "BEGIN"}
	StmtCommit   = Statement{SQL: "COMMIT"}
	StmtRollback = Statement{SQL: "ROLLBACK"}
)

// IsolationLevel is a PostgreSQL transaction isolation level
type IsolationLevel string

const (
	IsolationDefault         IsolationLevel = ""
	IsolationReadUncommitted IsolationLevel = "READ UNCOMMITTED"
	IsolationReadCommitted   IsolationLevel = "READ COMMITTED"
	IsolationRepeatableRead  IsolationLevel = "REPEATABLE READ"
	IsolationSerializable    IsolationLevel = "SERIALIZABLE"
)

// ParseIsolationLevel accepts "serializable", "repeatable_read", "REPEATABLE READ", etc.
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	normalized := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
	switch IsolationLevel(normalized) {
	case IsolationDefault:
		return IsolationDefault, nil
	case IsolationReadUncommitted, IsolationReadCommitted, IsolationRepeatableRead, IsolationSerializable:
		return IsolationLevel(normalized), nil
	default:
		return IsolationDefault, fmt.Errorf("unknown isolation level %q", s)
	}
}

// TxOptions controls how the BEGIN marker is rendered
type TxOptions struct {
	IsolationLevel IsolationLevel
	ReadOnly       bool
}

// BeginStatement renders the BEGIN marker for these options
func (o TxOptions) BeginStatement() Statement {
	if o.IsolationLevel == IsolationDefault && !o.ReadOnly {
		return StmtBegin
	}

	var b strings.Builder
	b.WriteString("BEGIN")
	if o.IsolationLevel != IsolationDefault {
		b.WriteString(" ISOLATION LEVEL ")
		b.WriteString(string(o.IsolationLevel))
	}
	if o.ReadOnly {
		b.WriteString(" READ ONLY")
	}
	return Statement{SQL: b.String()}
}

// Result is the outcome of a statement that does not return rows
type Result struct {
	Tag          string
	RowsAffected int64
}

// Rows is a fully materialized result set
type Rows struct {
	Columns []string
	Values  [][]any
}

// Len returns the number of rows
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}
