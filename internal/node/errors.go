package node

import "fmt"

// DataSourceError reports a file or source that could not be read or parsed.
type DataSourceError struct {
	Source string
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source %q: %v", e.Source, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// QueryError reports a database query failure, including a missing or
// mis-wired connection upstream.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("query failed: %v", e.Err)
	}
	return fmt.Sprintf("query %q failed: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// MappingError reports a structured-data mapping node that is missing a
// required named upstream or cannot apply its mapping.
type MappingError struct {
	Err error
}

func (e *MappingError) Error() string { return fmt.Sprintf("mapping failed: %v", e.Err) }

func (e *MappingError) Unwrap() error { return e.Err }

// RemoteInvocationError reports a sub-flow hand-off that did not produce a
// decodable response.
type RemoteInvocationError struct {
	URL    string
	Status int
	Err    error
}

func (e *RemoteInvocationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote invocation %s returned %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("remote invocation %s: %v", e.URL, e.Err)
}

func (e *RemoteInvocationError) Unwrap() error { return e.Err }

// ScriptError reports a script that failed to compile or raised at runtime.
type ScriptError struct {
	Runtime string
	Err     error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s script: %v", e.Runtime, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// NodeExecutionError reports a task that did not complete at all, such as
// a panic or a node type that could not be constructed.
type NodeExecutionError struct {
	NodeID string
	Err    error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q: %v", e.NodeID, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }
