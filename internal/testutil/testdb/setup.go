// Package testdb holds helpers for integration tests that need a live
// PostgreSQL. Tests are skipped unless TEST_DATABASE_URL is set.
package testdb

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kevin07696/txrunner/internal/domain"
	"github.com/kevin07696/txrunner/internal/domain/ports"
)

// EnvDatabaseURL names the variable that enables integration tests
const EnvDatabaseURL = "TEST_DATABASE_URL"

var tableSeq atomic.Int64

// URL returns the test database URL or skips the test
func URL(t *testing.T) string {
	t.Helper()
	databaseURL := os.Getenv(EnvDatabaseURL)
	if databaseURL == "" {
		t.Skip(EnvDatabaseURL + " not set, skipping integration test")
	}
	return databaseURL
}

// CreateTable creates a uniquely named table (id serial, name text unique)
// through q and drops it on cleanup
func CreateTable(t *testing.T, q ports.Querier) string {
	t.Helper()
	table := fmt.Sprintf("txrunner_test_%d_%d", time.Now().UnixNano(), tableSeq.Add(1))

	_, err := q.Exec(context.Background(), domain.NewStatement(
		fmt.Sprintf("CREATE TABLE %s (id serial PRIMARY KEY, name text UNIQUE NOT NULL)", table),
	))
	require.NoError(t, err)

	t.Cleanup(func() {
		if _, err := q.Exec(context.Background(), domain.NewStatement("DROP TABLE IF EXISTS "+table)); err != nil {
			t.Logf("Warning: failed to drop table %s: %v", table, err)
		}
	})
	return table
}

// CountRows returns SELECT count(*) for table
func CountRows(t *testing.T, q ports.Querier, table string) int64 {
	t.Helper()
	rows, err := q.Query(context.Background(), domain.NewStatement("SELECT count(*) FROM "+table))
	require.NoError(t, err)
	require.Equal(t, 1, rows.Len())

	count, ok := rows.Values[0][0].(int64)
	require.True(t, ok, "count(*) returned %T", rows.Values[0][0])
	return count
}
