// Package mocks provides testify mocks for the database ports.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/txrunner/internal/domain"
	"github.com/kevin07696/txrunner/internal/domain/ports"
)

// MockPool mocks ports.Pool
type MockPool struct {
	mock.Mock
}

func (m *MockPool) Acquire(ctx context.Context) (ports.Conn, error) {
	args := m.Called(ctx)
	if conn := args.Get(0); conn != nil {
		return conn.(ports.Conn), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPool) Exec(ctx context.Context, stmt domain.Statement) (domain.Result, error) {
	args := m.Called(ctx, stmt)
	return args.Get(0).(domain.Result), args.Error(1)
}

func (m *MockPool) Query(ctx context.Context, stmt domain.Statement) (*domain.Rows, error) {
	args := m.Called(ctx, stmt)
	if rows := args.Get(0); rows != nil {
		return rows.(*domain.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockConn mocks ports.Conn
type MockConn struct {
	mock.Mock
}

func (m *MockConn) Exec(ctx context.Context, stmt domain.Statement) (domain.Result, error) {
	args := m.Called(ctx, stmt)
	return args.Get(0).(domain.Result), args.Error(1)
}

func (m *MockConn) Query(ctx context.Context, stmt domain.Statement) (*domain.Rows, error) {
	args := m.Called(ctx, stmt)
	if rows := args.Get(0); rows != nil {
		return rows.(*domain.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConn) Release() {
	m.Called()
}

// SQL matches a domain.Statement argument by its SQL text
func SQL(sql string) interface{} {
	return mock.MatchedBy(func(stmt domain.Statement) bool {
		return stmt.SQL == sql
	})
}
