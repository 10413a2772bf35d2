// Package csv_reader provides the "csv" node: it reads a delimited file
// into a partitioned table.
package csv_reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/table"
)

// TypeTag is the node type handled by this package.
const TypeTag = "csv"

// Column types accepted in "dtypes".
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node constructor.
func (m *Module) Register(r *registry.Registry) {
	r.Register(TypeTag, New)
}

// Config is the parsed node configuration.
type Config struct {
	Path          string
	Delimiter     rune
	Header        bool
	Columns       []string
	DTypes        map[string]string
	PartitionRows int
}

// Reader is the csv node.
type Reader struct {
	cfg Config
}

// New builds a reader from its declaration.
func New(decl dag.NodeDecl) (node.Node, error) {
	c := node.Config(decl.Config)
	var cfg Config
	var err error

	if cfg.Path, err = c.RequiredString("path"); err != nil {
		return nil, err
	}
	delim, err := c.String("delimiter", ",")
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(delim) != 1 {
		return nil, fmt.Errorf("config \"delimiter\": expected a single character, got %q", delim)
	}
	cfg.Delimiter, _ = utf8.DecodeRuneInString(delim)
	if cfg.Header, err = c.Bool("header", true); err != nil {
		return nil, err
	}
	if cfg.Columns, err = c.Strings("columns"); err != nil {
		return nil, err
	}
	if !cfg.Header && len(cfg.Columns) == 0 {
		return nil, errors.New(`config "columns" is required when "header" is false`)
	}
	if cfg.DTypes, err = c.StringMap("dtypes"); err != nil {
		return nil, err
	}
	for col, ty := range cfg.DTypes {
		switch ty {
		case TypeString, TypeInt, TypeFloat, TypeBool:
		default:
			return nil, fmt.Errorf("config \"dtypes\".%s: unknown type %q", col, ty)
		}
	}
	if cfg.PartitionRows, err = c.Int("partition_rows", 0); err != nil {
		return nil, err
	}
	if cfg.PartitionRows < 0 {
		return nil, errors.New(`config "partition_rows" must not be negative`)
	}
	return &Reader{cfg: cfg}, nil
}

// Type implements node.Node.
func (r *Reader) Type() string { return TypeTag }

// Task implements node.Node.
func (r *Reader) Task(ctx context.Context, _ result.Inputs, rc *node.RunContext) *result.Envelope {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Reading delimited file.", "path", r.cfg.Path)

	columns, rows, err := r.read()
	if err != nil {
		return rc.Fail(&node.DataSourceError{Source: r.cfg.Path, Err: err})
	}
	tbl, err := r.partition(columns, rows)
	if err != nil {
		return rc.Fail(&node.DataSourceError{Source: r.cfg.Path, Err: err})
	}
	logger.Debug("File read.", "rows", len(rows), "partitions", tbl.NumPartitions())
	return rc.OK(tbl)
}

// Test returns an empty table with the declared columns without touching
// the file system.
func (r *Reader) Test(_ context.Context, _ result.Inputs, rc *node.RunContext) *result.Envelope {
	return rc.OK(table.Empty(r.cfg.Columns...))
}

func (r *Reader) read() ([]string, [][]string, error) {
	f, err := os.Open(r.cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = r.cfg.Delimiter
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	columns := r.cfg.Columns
	if r.cfg.Header {
		header, err := cr.Read()
		if err == io.EOF {
			return columns, nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading header: %w", err)
		}
		if len(columns) == 0 {
			columns = make([]string, len(header))
			for i, h := range header {
				columns[i] = strings.TrimSpace(h)
			}
		} else if len(columns) != len(header) {
			return nil, nil, fmt.Errorf("header has %d fields, %d columns declared", len(header), len(columns))
		}
	}
	cr.FieldsPerRecord = len(columns)

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, rec)
	}
	return columns, rows, nil
}

// partition converts raw rows to typed cells and splits them into chunks of
// PartitionRows rows.
func (r *Reader) partition(columns []string, raw [][]string) (*table.Partitioned, error) {
	types := make([]string, len(columns))
	for i, col := range columns {
		if ty, ok := r.cfg.DTypes[col]; ok {
			types[i] = ty
		} else {
			types[i] = inferType(raw, i)
		}
	}

	rows := make([][]any, len(raw))
	for ri, rec := range raw {
		row := make([]any, len(columns))
		for ci, cell := range rec {
			v, err := convert(cell, types[ci])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", ri+1, columns[ci], err)
			}
			row[ci] = v
		}
		rows[ri] = row
	}

	size := r.cfg.PartitionRows
	if size == 0 || size >= len(rows) {
		f, err := table.NewFrame(columns, rows)
		if err != nil {
			return nil, err
		}
		return table.FromFrames(columns, f), nil
	}
	var frames []*table.Frame
	for start := 0; start < len(rows); start += size {
		f, err := table.NewFrame(columns, rows[start:min(start+size, len(rows))])
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return table.FromFrames(columns, frames...), nil
}

// inferType picks int, then float, then string for an untyped column.
// Empty cells do not constrain the type.
func inferType(rows [][]string, col int) string {
	isInt, isFloat, seen := true, true, false
	for _, rec := range rows {
		cell := strings.TrimSpace(rec[col])
		if cell == "" {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				isInt = false
			}
		}
		if !isInt && isFloat {
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				isFloat = false
			}
		}
		if !isFloat {
			break
		}
	}
	switch {
	case !seen:
		return TypeString
	case isInt:
		return TypeInt
	case isFloat:
		return TypeFloat
	}
	return TypeString
}

func convert(cell, ty string) (any, error) {
	if ty == TypeString {
		return cell, nil
	}
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	switch ty {
	case TypeInt:
		return strconv.ParseInt(cell, 10, 64)
	case TypeFloat:
		return strconv.ParseFloat(cell, 64)
	case TypeBool:
		return strconv.ParseBool(cell)
	}
	return nil, fmt.Errorf("unknown type %q", ty)
}
