package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/specialistvlad/flowbridge/internal/sqldb"
	"github.com/specialistvlad/flowbridge/internal/table"
)

// FakeDB is an in-memory sqldb.DB. Queries are answered from Results keyed
// by the exact query text; inserts are appended to Written.
type FakeDB struct {
	Results map[string]*table.Frame
	QueryErr error

	mu      sync.Mutex
	Queries []string
	Written map[string][]*table.Frame
	Closed  bool
}

var _ sqldb.DB = (*FakeDB)(nil)

// Query implements sqldb.DB.
func (db *FakeDB) Query(_ context.Context, query string, _ ...any) (*table.Frame, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Queries = append(db.Queries, query)
	if db.QueryErr != nil {
		return nil, db.QueryErr
	}
	f, ok := db.Results[query]
	if !ok {
		return nil, errors.New("relation does not exist")
	}
	return f, nil
}

// Insert implements sqldb.DB.
func (db *FakeDB) Insert(_ context.Context, tableName string, f *table.Frame) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.Written == nil {
		db.Written = make(map[string][]*table.Frame)
	}
	db.Written[tableName] = append(db.Written[tableName], f)
	return int64(f.Len()), nil
}

// Driver implements sqldb.DB.
func (db *FakeDB) Driver() string { return "fake" }

// Close implements sqldb.DB.
func (db *FakeDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Closed = true
	return nil
}
