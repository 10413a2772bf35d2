// Package registry maps node type tags, as written in flow declarations, to
// the compiled Go constructors that build runnable nodes.
//
// Each node variant lives in its own package under modules/ and registers
// itself through the Module interface. Construction never aborts a run: an
// unknown tag or an invalid configuration is logged and yields no node,
// which the executor reports as a failed result for that node alone.
package registry
