package inmemorystore

import (
	"context"
	"sync"

	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/nodestore"
	"github.com/specialistvlad/flowbridge/internal/result"
)

// Store is an in-memory implementation of nodestore.Store.
type Store struct {
	states  sync.Map // Key: node id, Value: node.State
	results sync.Map // Key: node id, Value: *result.Envelope
}

// New creates a new, empty in-memory node state store.
func New() nodestore.Store {
	return &Store{}
}

// Seed creates a store pre-populated with prior results, each marked with
// the terminal state matching its envelope.
func Seed(prior map[string]*result.Envelope) nodestore.Store {
	s := &Store{}
	for id, env := range prior {
		if env == nil {
			continue
		}
		s.results.Store(id, env)
		if env.Error {
			s.states.Store(id, node.Failed)
		} else {
			s.states.Store(id, node.Done)
		}
	}
	return s
}

// SetStatus updates the execution state of a node.
func (s *Store) SetStatus(_ context.Context, id string, status node.State) error {
	s.states.Store(id, status)
	return nil
}

// GetStatus retrieves the state of a node, Pending if never set.
func (s *Store) GetStatus(_ context.Context, id string) (node.State, error) {
	status, ok := s.states.Load(id)
	if !ok {
		return node.Pending, nil
	}
	return status.(node.State), nil
}

// SetResult records the envelope of a node.
func (s *Store) SetResult(_ context.Context, id string, env *result.Envelope) error {
	s.results.Store(id, env)
	return nil
}

// GetResult retrieves the envelope of a node.
func (s *Store) GetResult(_ context.Context, id string) (*result.Envelope, error) {
	env, ok := s.results.Load(id)
	if !ok {
		return nil, nil
	}
	return env.(*result.Envelope), nil
}

// Results returns a snapshot of all envelopes.
func (s *Store) Results(_ context.Context) (map[string]*result.Envelope, error) {
	out := make(map[string]*result.Envelope)
	s.results.Range(func(k, v any) bool {
		out[k.(string)] = v.(*result.Envelope)
		return true
	})
	return out, nil
}

// Statuses returns a snapshot of all states.
func (s *Store) Statuses(_ context.Context) (map[string]node.State, error) {
	out := make(map[string]node.State)
	s.states.Range(func(k, v any) bool {
		out[k.(string)] = v.(node.State)
		return true
	})
	return out, nil
}
