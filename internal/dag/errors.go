package dag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a GraphConstructionError.
type ErrorKind string

const (
	KindCycle     ErrorKind = "cycle"
	KindDangling  ErrorKind = "dangling_edge"
	KindDuplicate ErrorKind = "duplicate"
	KindInvalid   ErrorKind = "invalid"
)

// Sentinels for errors.Is.
var (
	ErrCycle        = errors.New("dependency cycle")
	ErrDanglingEdge = errors.New("edge references a missing node")
)

// GraphConstructionError reports a graph that cannot be executed. It is
// fatal for a run and is raised before any node executes.
type GraphConstructionError struct {
	Kind    ErrorKind
	NodeIDs []string
	EdgeID  string
	Msg     string
}

func (e *GraphConstructionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "graph construction failed (%s)", e.Kind)
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.EdgeID != "" {
		fmt.Fprintf(&b, " [edge %s]", e.EdgeID)
	}
	if len(e.NodeIDs) > 0 {
		fmt.Fprintf(&b, " [nodes %s]", strings.Join(e.NodeIDs, ", "))
	}
	return b.String()
}

// Is matches the ErrCycle and ErrDanglingEdge sentinels.
func (e *GraphConstructionError) Is(target error) bool {
	switch target {
	case ErrCycle:
		return e.Kind == KindCycle
	case ErrDanglingEdge:
		return e.Kind == KindDangling
	}
	return false
}
