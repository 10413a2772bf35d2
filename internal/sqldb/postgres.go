package sqldb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/specialistvlad/flowbridge/internal/table"
)

// Postgres is a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects and pings the server.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Driver implements DB.
func (p *Postgres) Driver() string { return DriverPostgres }

// Query implements DB.
func (p *Postgres) Query(ctx context.Context, query string, args ...any) (*table.Frame, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var data [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]any, len(vals))
		for i, v := range vals {
			row[i] = normalize(v)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table.NewFrame(columns, data)
}

// Insert implements DB using the COPY protocol.
func (p *Postgres) Insert(ctx context.Context, tableName string, f *table.Frame) (int64, error) {
	if f.Len() == 0 {
		return 0, nil
	}
	return p.pool.CopyFrom(ctx,
		pgx.Identifier{tableName},
		f.Columns(),
		pgx.CopyFromRows(f.Rows()),
	)
}

// Close implements DB.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
