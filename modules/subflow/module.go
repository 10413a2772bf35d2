// Package subflow provides the "subflow" node. It hands a nested flow,
// together with the results of its own upstream nodes, to a remote
// flowbridge executor and returns the nested results.
package subflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/remote"
	"github.com/specialistvlad/flowbridge/internal/result"
)

// TypeTag is the node type handled by this package.
const TypeTag = "subflow"

const defaultTimeout = 300 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node constructor.
func (m *Module) Register(r *registry.Registry) {
	r.Register(TypeTag, New)
}

// Subflow is the subflow node.
type Subflow struct {
	flow    json.RawMessage
	addr    *node.Address
	timeout time.Duration
	strict  bool
}

// New builds a subflow node. The nested flow is validated by the remote
// executor, not here.
func New(decl dag.NodeDecl) (node.Node, error) {
	c := node.Config(decl.Config)
	flow, err := c.Map("flow")
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, fmt.Errorf(`config "flow" is required`)
	}
	raw, err := json.Marshal(flow)
	if err != nil {
		return nil, fmt.Errorf(`config "flow": %w`, err)
	}

	s := &Subflow{flow: raw}
	host, err := c.String("host", "")
	if err != nil {
		return nil, err
	}
	port, err := c.Int("port", 0)
	if err != nil {
		return nil, err
	}
	ssl, err := c.Bool("ssl", false)
	if err != nil {
		return nil, err
	}
	if host != "" || port != 0 {
		s.addr = &node.Address{Host: host, Port: port, SSL: ssl}
		if !s.addr.Valid() {
			return nil, fmt.Errorf("executor address needs both host and port, got %q:%d", host, port)
		}
	}

	secs, err := c.Int("timeout", int(defaultTimeout/time.Second))
	if err != nil {
		return nil, err
	}
	if secs < 0 {
		return nil, fmt.Errorf(`config "timeout" must not be negative`)
	}
	s.timeout = time.Duration(secs) * time.Second
	if s.strict, err = c.Bool("strict", false); err != nil {
		return nil, err
	}
	return s, nil
}

// Type implements node.Node.
func (s *Subflow) Type() string { return TypeTag }

// address resolves the executor: the node's own address wins over the
// run's default.
func (s *Subflow) address(rc *node.RunContext) (*node.Address, error) {
	if s.addr != nil {
		return s.addr, nil
	}
	if a := rc.Options.ExecutorAddress; a.Valid() {
		return a, nil
	}
	return nil, errors.New("no executor address configured on the node or in the run options")
}

// Task implements node.Node. Failed upstreams are forwarded as error
// entries; the nested flow decides what to do with them.
func (s *Subflow) Task(ctx context.Context, in result.Inputs, rc *node.RunContext) *result.Envelope {
	addr, err := s.address(rc)
	if err != nil {
		return rc.Fail(&node.RemoteInvocationError{Err: err})
	}
	inputs, err := remote.EncodeInputs(in)
	if err != nil {
		return rc.Fail(&node.RemoteInvocationError{URL: addr.URL(), Err: err})
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Handing off sub-flow.", "executor", addr.URL(), "inputs", in.IDs())
	resp, err := remote.NewClient(addr.URL(), s.timeout).Run(ctx, &remote.RunRequest{
		Flow:   s.flow,
		Inputs: inputs,
		Options: node.Options{
			TestMode:        rc.Options.TestMode,
			TraceMode:       rc.Options.TraceMode,
			ExecutorAddress: rc.Options.ExecutorAddress,
		},
	})
	if err != nil {
		return rc.Fail(err)
	}

	failed := resp.Failed()
	logger.Info("🛰️ Sub-flow finished.", "remoteRunID", resp.RunID, "status", resp.Status, "failed", len(failed))
	if s.strict && len(failed) > 0 {
		return rc.Fail(&node.RemoteInvocationError{
			URL:    addr.URL() + remote.RunPath,
			Status: http.StatusOK,
			Err:    fmt.Errorf("remote run %s failed at %v", resp.RunID, failed),
		})
	}
	return rc.OK(resp.Envelopes())
}

// Test implements node.Tester. Nothing is sent.
func (s *Subflow) Test(_ context.Context, _ result.Inputs, rc *node.RunContext) *result.Envelope {
	return rc.OK(map[string]*result.Envelope{})
}
