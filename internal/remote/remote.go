// Package remote defines the sub-flow hand-off protocol spoken between a
// subflow node and a flowbridge server, plus the client side of it.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/serialize"
)

// RunPath is the endpoint accepting sub-flow runs.
const RunPath = "/api/v1/flows/run"

// RunRequest hands a nested flow to a remote executor. Inputs hold the
// serialized envelopes of the caller's upstream nodes, keyed by node id;
// the nested flow may declare edges from those ids.
type RunRequest struct {
	Flow    json.RawMessage            `json:"flow"`
	Inputs  map[string]json.RawMessage `json:"inputs,omitempty"`
	Options node.Options               `json:"options"`
}

// RunResponse reports a finished remote run.
type RunResponse struct {
	RunID   string                    `json:"run_id"`
	Status  string                    `json:"status"`
	Results map[string]serialize.Wire `json:"results"`
}

// Envelopes returns the nested results keyed by node id.
func (r *RunResponse) Envelopes() map[string]*result.Envelope {
	out := make(map[string]*result.Envelope, len(r.Results))
	for id, w := range r.Results {
		out[id] = w.Envelope()
	}
	return out
}

// Failed returns the ids of failed nested nodes, sorted.
func (r *RunResponse) Failed() []string {
	var ids []string
	for id, w := range r.Results {
		if w.Error {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ErrorResponse is the body of a non-200 answer.
type ErrorResponse struct {
	Message string `json:"message"`
}

// EncodeInputs serializes upstream envelopes for a RunRequest. Failed
// envelopes are kept so the remote side sees them as error entries.
func EncodeInputs(in result.Inputs) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(in))
	for id, env := range in {
		if env == nil {
			continue
		}
		b, err := serialize.JSON(env)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", id, err)
		}
		out[id] = b
	}
	return out, nil
}

// DecodeInputs is the server-side counterpart of EncodeInputs.
func DecodeInputs(raw map[string]json.RawMessage) (map[string]*result.Envelope, error) {
	out := make(map[string]*result.Envelope, len(raw))
	for id, b := range raw {
		env, err := serialize.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", id, err)
		}
		env.Node.ID = id
		out[id] = env
	}
	return out, nil
}

// Client posts sub-flows to one executor.
type Client struct {
	http *resty.Client
	base string
}

// NewClient creates a client for the executor at baseURL. A zero timeout
// leaves the request bounded only by its context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{http: c, base: strings.TrimRight(baseURL, "/")}
}

// Run posts req and decodes the response. Every failure is a
// *node.RemoteInvocationError.
func (c *Client) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	url := c.base + RunPath
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(url)
	if err != nil {
		return nil, &node.RemoteInvocationError{URL: url, Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		var apiErr ErrorResponse
		msg := strings.TrimSpace(resp.String())
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		return nil, &node.RemoteInvocationError{URL: url, Status: resp.StatusCode(), Err: errors.New(msg)}
	}

	var out RunResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &node.RemoteInvocationError{URL: url, Status: resp.StatusCode(), Err: fmt.Errorf("decoding response: %w", err)}
	}
	if out.RunID == "" {
		return nil, &node.RemoteInvocationError{URL: url, Status: resp.StatusCode(), Err: errors.New("response has no run id")}
	}
	return &out, nil
}
