// Package flowfile reads flow documents: the nodes, edges and executor
// options of one flow, written as JSON, YAML or HCL.
package flowfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"gopkg.in/yaml.v3"
)

// Format names a flow document syntax.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	HCL  Format = "hcl"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	case ".hcl":
		return HCL, nil
	}
	return "", fmt.Errorf("unsupported flow file extension %q (want .json, .yaml, .yml or .hcl)", filepath.Ext(path))
}

// Document is a parsed flow.
type Document struct {
	Nodes           map[string]NodeSpec `json:"nodes" yaml:"nodes"`
	Edges           map[string]EdgeSpec `json:"edges" yaml:"edges"`
	ExecutorOptions node.Options        `json:"executor_options" yaml:"executor_options"`
}

// NodeSpec declares one node. Configuration may be nested under "config"
// or written inline next to "type"; both end up in Config.
type NodeSpec struct {
	Type   string
	Config map[string]any
}

// EdgeSpec declares one edge.
type EdgeSpec struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

func (s *NodeSpec) fromMap(m map[string]any) error {
	t, ok := m["type"].(string)
	if !ok || t == "" {
		return fmt.Errorf(`missing string "type"`)
	}
	s.Type = t
	s.Config = nil
	if nested, ok := m["config"]; ok && nested != nil {
		cm, ok := nested.(map[string]any)
		if !ok {
			return fmt.Errorf(`"config" must be an object, got %T`, nested)
		}
		s.Config = make(map[string]any, len(cm))
		for k, v := range cm {
			s.Config[k] = v
		}
	}
	for k, v := range m {
		if k == "type" || k == "config" {
			continue
		}
		if s.Config == nil {
			s.Config = make(map[string]any)
		}
		if _, dup := s.Config[k]; dup {
			return fmt.Errorf("config key %q is set both inline and under \"config\"", k)
		}
		s.Config[k] = v
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *NodeSpec) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	return s.fromMap(m)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *NodeSpec) UnmarshalYAML(value *yaml.Node) error {
	var m map[string]any
	if err := value.Decode(&m); err != nil {
		return err
	}
	return s.fromMap(m)
}

// MarshalJSON writes the nested form.
func (s NodeSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string         `json:"type"`
		Config map[string]any `json:"config,omitempty"`
	}{s.Type, s.Config})
}

// Load reads and parses a flow file, picking the format from its
// extension.
func Load(ctx context.Context, path string) (*Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading flow file: %w", err)
	}
	doc, err := parse(data, format, path)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Flow file loaded.", "path", path, "format", format, "nodes", len(doc.Nodes), "edges", len(doc.Edges))
	return doc, nil
}

// Parse parses a flow document held in memory.
func Parse(data []byte, format Format) (*Document, error) {
	return parse(data, format, "flow."+string(format))
}

func parse(data []byte, format Format, filename string) (*Document, error) {
	var doc Document
	switch format {
	case JSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filename, err)
		}
	case YAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filename, err)
		}
	case HCL:
		d, err := parseHCL(data, filename)
		if err != nil {
			return nil, err
		}
		doc = *d
	default:
		return nil, fmt.Errorf("unsupported flow format %q", format)
	}
	return &doc, nil
}

// Decls lists the declared nodes and edges, each sorted by id.
func (d *Document) Decls() ([]dag.NodeDecl, []dag.Edge) {
	ids := make([]string, 0, len(d.Nodes))
	for id := range d.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	nodes := make([]dag.NodeDecl, 0, len(ids))
	for _, id := range ids {
		spec := d.Nodes[id]
		nodes = append(nodes, dag.NodeDecl{ID: id, Type: spec.Type, Config: spec.Config})
	}

	edgeIDs := make([]string, 0, len(d.Edges))
	for id := range d.Edges {
		edgeIDs = append(edgeIDs, id)
	}
	sort.Strings(edgeIDs)
	edges := make([]dag.Edge, 0, len(edgeIDs))
	for _, id := range edgeIDs {
		e := d.Edges[id]
		edges = append(edges, dag.Edge{ID: id, Source: e.Source, Target: e.Target})
	}
	return nodes, edges
}

// Graph validates the document into a graph. Declarations are handed over
// in id order so construction errors are reproducible.
func (d *Document) Graph() (*dag.Graph, error) {
	return dag.New(d.Decls())
}

// Options returns a copy of the document's executor options.
func (d *Document) Options() *node.Options {
	opts := d.ExecutorOptions
	if a := opts.ExecutorAddress; a != nil {
		cp := *a
		opts.ExecutorAddress = &cp
	}
	return &opts
}
