// Package statementfile loads the YAML statement files run by the txrun CLI.
//
// A file looks like:
//
//	isolation_level: serializable
//	read_only: false
//	statements:
//	  - sql: INSERT INTO accounts (id, balance) VALUES ($1, $2)
//	    args: [1, 100]
//	  - sql: UPDATE accounts SET balance = balance - $1 WHERE id = $2
//	    args: [10, 1]
package statementfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/kevin07696/txrunner/internal/domain"
)

// ErrNoStatements is returned for a file with an empty statement list
var ErrNoStatements = errors.New("statement file has no statements")

// Entry is one statement in a file
type Entry struct {
	SQL  string `yaml:"sql"`
	Args []any  `yaml:"args,omitempty"`
}

// File is a parsed statement file
type File struct {
	IsolationLevel string  `yaml:"isolation_level,omitempty"`
	ReadOnly       bool    `yaml:"read_only,omitempty"`
	Statements     []Entry `yaml:"statements"`
}

// Load reads and parses path from fsys
func Load(fsys afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement file %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a statement file. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoStatements
		}
		return nil, fmt.Errorf("invalid statement file: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the statement list and isolation level
func (f *File) Validate() error {
	if len(f.Statements) == 0 {
		return ErrNoStatements
	}
	for i, e := range f.Statements {
		if strings.TrimSpace(e.SQL) == "" {
			return fmt.Errorf("statement %d: sql is required", i)
		}
	}
	if _, err := domain.ParseIsolationLevel(f.IsolationLevel); err != nil {
		return err
	}
	return nil
}

// DomainStatements converts the entries in file order
func (f *File) DomainStatements() []domain.Statement {
	stmts := make([]domain.Statement, len(f.Statements))
	for i, e := range f.Statements {
		stmts[i] = domain.NewStatement(e.SQL, e.Args...)
	}
	return stmts
}

// TxOptions returns the BEGIN options, with overrides applied when set.
// An empty isolation override keeps the file's level.
func (f *File) TxOptions(isolationOverride string, readOnlyOverride bool) (domain.TxOptions, error) {
	level := f.IsolationLevel
	if isolationOverride != "" {
		level = isolationOverride
	}
	parsed, err := domain.ParseIsolationLevel(level)
	if err != nil {
		return domain.TxOptions{}, err
	}
	return domain.TxOptions{
		IsolationLevel: parsed,
		ReadOnly:       f.ReadOnly || readOnlyOverride,
	}, nil
}
