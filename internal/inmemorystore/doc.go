// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of nodestore.Store, used for every local run.
//
// It keeps states and envelopes in sync.Maps: the key space (all node ids)
// is known when the run starts, values change often, and each node's entry
// is written by a single worker, which is the access pattern sync.Map is
// built for.
package inmemorystore
