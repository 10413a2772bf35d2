package table

import (
	"fmt"
	"sync"
)

// Loader produces one partition on demand.
type Loader func() (*Frame, error)

// Partitioned is a lazy table: partitions are loaded only when the table is
// materialized, and the combined frame is computed once.
type Partitioned struct {
	columns []string
	parts   []Loader

	once  sync.Once
	frame *Frame
	err   error
}

// NewPartitioned builds a lazy table from partition loaders.
func NewPartitioned(columns []string, parts ...Loader) *Partitioned {
	return &Partitioned{columns: append([]string(nil), columns...), parts: parts}
}

// FromFrames wraps already loaded frames as partitions.
func FromFrames(columns []string, frames ...*Frame) *Partitioned {
	parts := make([]Loader, len(frames))
	for i, f := range frames {
		parts[i] = func() (*Frame, error) { return f, nil }
	}
	return NewPartitioned(columns, parts...)
}

// Columns returns the declared column names.
func (p *Partitioned) Columns() []string { return append([]string(nil), p.columns...) }

// NumPartitions returns the number of partitions.
func (p *Partitioned) NumPartitions() int { return len(p.parts) }

// Partition loads a single partition without materializing the rest.
func (p *Partitioned) Partition(i int) (*Frame, error) {
	if i < 0 || i >= len(p.parts) {
		return nil, fmt.Errorf("partition %d out of range [0,%d)", i, len(p.parts))
	}
	return p.parts[i]()
}

// Materialize loads every partition and concatenates them. The result,
// including a failure, is cached.
func (p *Partitioned) Materialize() (*Frame, error) {
	p.once.Do(func() {
		frames := make([]*Frame, 0, len(p.parts))
		for i := range p.parts {
			f, err := p.Partition(i)
			if err != nil {
				p.err = fmt.Errorf("loading partition %d: %w", i, err)
				return
			}
			frames = append(frames, f)
		}
		p.frame, p.err = Concat(p.columns, frames...)
	})
	return p.frame, p.err
}

func (p *Partitioned) String() string {
	return fmt.Sprintf("Partitioned(columns=%v, partitions=%d)", p.columns, len(p.parts))
}
