package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/specialistvlad/flowbridge/internal/table"
)

// insertBatch bounds the rows sent in one INSERT statement.
const insertBatch = 500

// MySQL is a database/sql pool using the MySQL driver.
type MySQL struct {
	db *sql.DB
}

// OpenMySQL connects and pings the server.
func OpenMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging mysql: %w", err)
	}
	return &MySQL{db: db}, nil
}

// Driver implements DB.
func (m *MySQL) Driver() string { return DriverMySQL }

// Query implements DB.
func (m *MySQL) Query(ctx context.Context, query string, args ...any) (*table.Frame, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var data [][]any
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		data = append(data, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table.NewFrame(columns, data)
}

// Insert implements DB with batched multi-row INSERT statements inside one
// transaction.
func (m *MySQL) Insert(ctx context.Context, tableName string, f *table.Frame) (int64, error) {
	if f.Len() == 0 {
		return 0, nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	rows := f.Rows()
	for start := 0; start < len(rows); start += insertBatch {
		end := min(start+insertBatch, len(rows))
		stmt, args := insertStatement(tableName, f.Columns(), rows[start:end])
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// Close implements DB.
func (m *MySQL) Close() error { return m.db.Close() }

// insertStatement builds a multi-row INSERT with ? placeholders.
func insertStatement(tableName string, columns []string, rows [][]any) (string, []any) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", quoteIdent(tableName), strings.Join(quoted, ", "))
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
		args = append(args, row...)
	}
	return b.String(), args
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
