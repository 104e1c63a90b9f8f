package domain

import "testing"

func TestParseIsolationLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    IsolationLevel
		wantErr bool
	}{
		{input: "", want: IsolationDefault},
		{input: "serializable", want: IsolationSerializable},
		{input: "repeatable_read", want: IsolationRepeatableRead},
		{input: "READ COMMITTED", want: IsolationReadCommitted},
		{input: " read uncommitted ", want: IsolationReadUncommitted},
		{input: "snapshot", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseIsolationLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIsolationLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseIsolationLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTxOptions_BeginStatement(t *testing.T) {
	tests := []struct {
		name string
		opts TxOptions
		want string
	}{
		{name: "default", opts: TxOptions{}, want: "BEGIN"},
		{name: "read_only", opts: TxOptions{ReadOnly: true}, want: "BEGIN READ ONLY"},
		{name: "isolation", opts: TxOptions{IsolationLevel: IsolationSerializable}, want: "BEGIN ISOLATION LEVEL SERIALIZABLE"},
		{
			name: "both",
			opts: TxOptions{IsolationLevel: IsolationRepeatableRead, ReadOnly: true},
			want: "BEGIN ISOLATION LEVEL REPEATABLE READ READ ONLY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.BeginStatement().SQL; got != tt.want {
				t.Errorf("BeginStatement() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatement_String(t *testing.T) {
	if got := NewStatement("SELECT 1").String(); got != "SELECT 1" {
		t.Errorf("String() = %q", got)
	}
	if got := NewStatement("SELECT $1", 7).String(); got != "SELECT $1 [7]" {
		t.Errorf("String() = %q", got)
	}
}

func TestState_String(t *testing.T) {
	if StateRolledBack.String() != "rolled_back" {
		t.Errorf("StateRolledBack.String() = %q", StateRolledBack.String())
	}
	if State(99).String() != "unknown" {
		t.Errorf("unknown state should render as unknown")
	}
}

func TestRows_Len(t *testing.T) {
	var nilRows *Rows
	if nilRows.Len() != 0 {
		t.Errorf("nil Rows should have length 0")
	}
	rows := &Rows{Values: [][]any{{1}, {2}}}
	if rows.Len() != 2 {
		t.Errorf("Len() = %d, want 2", rows.Len())
	}
}
