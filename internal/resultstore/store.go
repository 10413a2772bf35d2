// Package resultstore persists serialized node results so finished runs can
// be inspected and partially re-run. Backends: in-memory, Redis and
// PostgreSQL.
package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/serialize"
)

// ErrNotFound is returned when no record exists for a run and node.
var ErrNotFound = errors.New("result not found")

// Record is one persisted node result.
type Record struct {
	RunID     string          `json:"run_id"`
	NodeID    string          `json:"node_id"`
	NodeType  string          `json:"node_type"`
	Error     bool            `json:"error"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is implemented by every backend.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, runID, nodeID string) (*Record, error)
	List(ctx context.Context, runID string) ([]Record, error)
	Close() error
}

// NewRecord serializes an envelope into a record.
func NewRecord(env *result.Envelope) (Record, error) {
	payload, err := serialize.JSON(env)
	if err != nil {
		return Record{}, fmt.Errorf("serializing result of %s: %w", env.Node.ID, err)
	}
	return Record{
		RunID:     env.Context.RunID,
		NodeID:    env.Node.ID,
		NodeType:  env.Node.Type,
		Error:     env.Error,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Envelope rebuilds a result from a record. Tables come back as row
// arrays, which is the serialized form.
func (r Record) Envelope() (*result.Envelope, error) {
	env, err := serialize.Decode(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("decoding record %s/%s: %w", r.RunID, r.NodeID, err)
	}
	env.Node = result.NodeRef{ID: r.NodeID, Type: r.NodeType}
	env.Context.RunID = r.RunID
	return env, nil
}
