package statements

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StatementRequest is one SQL statement with positional arguments
type StatementRequest struct {
	SQL  string `json:"sql" yaml:"sql"`
	Args []any  `json:"args,omitempty" yaml:"args,omitempty"`
}

// QueryRequest runs one statement in auto-commit mode
type QueryRequest struct {
	SQL         string `json:"sql"`
	Args        []any  `json:"args,omitempty"`
	ReturnsRows bool   `json:"returns_rows"`
}

// QueryResponse carries either rows or a command tag
type QueryResponse struct {
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	Tag          string   `json:"tag,omitempty"`
	RowsAffected int64    `json:"rows_affected"`
}

// TransactionRequest runs statements in order inside one transaction
type TransactionRequest struct {
	Statements     []StatementRequest `json:"statements"`
	ReadOnly       bool               `json:"read_only,omitempty"`
	IsolationLevel string             `json:"isolation_level,omitempty"`
}

// TransactionResponse reports a committed transaction
type TransactionResponse struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Executed   int    `json:"executed"`
	DurationMS int64  `json:"duration_ms"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Success  bool   `json:"success"`
	Code     string `json:"code"`
	Error    string `json:"error"`
	Index    *int   `json:"index,omitempty"`
	Phase    string `json:"phase,omitempty"`
	SQLState string `json:"sqlstate,omitempty"`

	// RollbackError is set when the rollback after the failure also failed
	RollbackError string `json:"rollback_error,omitempty"`
}

// APIError is returned by Client for non-2xx responses
type APIError struct {
	StatusCode int
	Body       ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Index != nil {
		return fmt.Sprintf("%d %s: statement %d: %s", e.StatusCode, e.Body.Code, *e.Body.Index, e.Body.Error)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Body.Code, e.Body.Error)
}

// decodeStrict decodes one JSON document, rejecting unknown fields and
// keeping numbers exact
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON body")
	}
	return nil
}

// normalizeArgs turns json.Number into int64 or float64 so drivers can bind them
func normalizeArgs(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				out[i] = n
			} else if f, err := v.Float64(); err == nil {
				out[i] = f
			} else {
				out[i] = v.String()
			}
		default:
			out[i] = v
		}
	}
	return out
}
