// Package dag holds the static structure of a flow: node declarations and
// the edges between them. It validates the graph, computes a deterministic
// execution order and resolves the input set of each node from the results
// produced so far.
//
// A Graph is immutable once built and safe for concurrent reads.
package dag
