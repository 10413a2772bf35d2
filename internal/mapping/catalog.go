// Package mapping holds the shared catalog of value-mapping tables used by
// the mapper node. Tables are two-column CSV files (from, to) loaded on
// first use and kept for the life of the process.
package mapping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrUnknownTable is returned for a table name with no backing file.
var ErrUnknownTable = errors.New("unknown mapping table")

// Table maps source values to replacement values.
type Table map[string]string

// Lookup returns the replacement for v, or v itself when unmapped.
func (t Table) Lookup(v string) string {
	if r, ok := t[v]; ok {
		return r
	}
	return v
}

// Catalog loads mapping tables from a directory.
type Catalog struct {
	dir string

	mu     sync.Mutex
	tables map[string]Table
}

// NewCatalog creates a catalog reading <dir>/<name>.csv files. An empty dir
// yields a catalog where only preloaded tables exist.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir, tables: make(map[string]Table)}
}

// Preload registers an in-memory table under name.
func (c *Catalog) Preload(name string, t Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[name] = t
}

// Get returns the named table, loading it on first use.
func (c *Catalog) Get(name string) (Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tables[name]; ok {
		return t, nil
	}
	if c.dir == "" || strings.ContainsAny(name, `/\`) || name == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}

	path := filepath.Join(c.dir, name+".csv")
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
		}
		return nil, fmt.Errorf("opening mapping table %q: %w", name, err)
	}
	defer f.Close()

	t, err := readTable(f)
	if err != nil {
		return nil, fmt.Errorf("reading mapping table %q: %w", name, err)
	}
	c.tables[name] = t
	return t, nil
}

// Names returns the tables loaded so far.
func (c *Catalog) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.tables))
	for n := range c.tables {
		out = append(out, n)
	}
	return out
}

func readTable(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	t := make(Table)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, err
		}
		t[rec[0]] = rec[1]
	}
}
