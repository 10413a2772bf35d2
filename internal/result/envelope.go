// Package result defines the uniform envelope every node execution produces,
// and the input set a node receives from its upstream nodes.
package result

import (
	"fmt"
	"sort"
	"time"
)

// NodeRef identifies the node that produced an envelope.
type NodeRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Metadata is the execution context attached to every envelope.
type Metadata struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	TestMode   bool          `json:"test_mode,omitempty"`
	// PropagatedFrom names the upstream node whose failure this envelope
	// re-reports. Empty for envelopes describing the node's own outcome.
	PropagatedFrom string `json:"propagated_from,omitempty"`
}

// Envelope is the outcome of one node execution. When Error is true Data
// holds a human-readable error text and never a partial payload.
//
// Envelopes are created once by a node's task and must not be mutated
// afterwards; downstream readers share them without locking.
type Envelope struct {
	Error   bool     `json:"error"`
	Data    any      `json:"data"`
	Node    NodeRef  `json:"node"`
	Context Metadata `json:"context"`
}

// OK wraps a successful payload.
func OK(ref NodeRef, meta Metadata, data any) *Envelope {
	return &Envelope{Error: false, Data: data, Node: ref, Context: meta}
}

// Fail wraps an error. A nil err still yields a failed envelope.
func Fail(ref NodeRef, meta Metadata, err error) *Envelope {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &Envelope{Error: true, Data: msg, Node: ref, Context: meta}
}

// Failf is Fail with a formatted message.
func Failf(ref NodeRef, meta Metadata, format string, args ...any) *Envelope {
	return Fail(ref, meta, fmt.Errorf(format, args...))
}

// Succeeded reports whether the envelope carries a payload.
func (e *Envelope) Succeeded() bool {
	return e != nil && !e.Error
}

// Payload returns the data of a successful envelope and nil otherwise.
func (e *Envelope) Payload() any {
	if !e.Succeeded() {
		return nil
	}
	return e.Data
}

// ErrorText returns the failure message, or "" for successful envelopes.
func (e *Envelope) ErrorText() string {
	if e == nil {
		return "missing result"
	}
	if !e.Error {
		return ""
	}
	if s, ok := e.Data.(string); ok {
		return s
	}
	return fmt.Sprint(e.Data)
}

func (e *Envelope) String() string {
	if e == nil {
		return "<nil envelope>"
	}
	if e.Error {
		return fmt.Sprintf("%s(%s) failed: %s", e.Node.ID, e.Node.Type, e.ErrorText())
	}
	return fmt.Sprintf("%s(%s) ok: %T", e.Node.ID, e.Node.Type, e.Data)
}

// Inputs maps an upstream node id to the envelope it produced.
type Inputs map[string]*Envelope

// IDs returns the upstream ids in ascending order.
func (in Inputs) IDs() []string {
	ids := make([]string, 0, len(in))
	for id := range in {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Single returns the only upstream envelope. ok is false when the set does
// not contain exactly one entry.
func (in Inputs) Single() (id string, env *Envelope, ok bool) {
	if len(in) != 1 {
		return "", nil, false
	}
	for id, env := range in {
		return id, env, true
	}
	return "", nil, false
}

// FirstFailure returns the failed upstream with the smallest id, if any.
func (in Inputs) FirstFailure() (string, *Envelope, bool) {
	for _, id := range in.IDs() {
		if env := in[id]; env == nil || env.Error {
			return id, env, true
		}
	}
	return "", nil, false
}

// Payloads returns the payloads of successful upstreams keyed by id.
func (in Inputs) Payloads() map[string]any {
	out := make(map[string]any, len(in))
	for id, env := range in {
		if env.Succeeded() {
			out[id] = env.Data
		}
	}
	return out
}
