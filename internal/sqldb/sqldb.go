// Package sqldb opens relational database handles and exchanges tables
// with them. PostgreSQL goes through pgx, MySQL through database/sql and
// the go-sql-driver.
package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/flowbridge/internal/table"
)

// DB is an open database handle.
type DB interface {
	// Query runs a statement and returns every row as a frame.
	Query(ctx context.Context, query string, args ...any) (*table.Frame, error)
	// Insert appends the rows of f to the named table and returns the
	// number of rows written.
	Insert(ctx context.Context, tableName string, f *table.Frame) (int64, error)
	Driver() string
	Close() error
}

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Open connects using the named driver. "pgx" and "postgresql" are
// accepted as aliases of "postgres".
func Open(ctx context.Context, driver, dsn string) (DB, error) {
	switch strings.ToLower(driver) {
	case DriverPostgres, "postgresql", "pgx":
		return OpenPostgres(ctx, dsn)
	case DriverMySQL:
		return OpenMySQL(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// normalize turns driver-specific scan results into plain values.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}
