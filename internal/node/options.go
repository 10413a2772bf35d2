package node

import (
	"fmt"
	"net"
	"strconv"
)

// Address locates a remote executor.
type Address struct {
	Host string `json:"host" yaml:"host" hcl:"host"`
	Port int    `json:"port" yaml:"port" hcl:"port"`
	SSL  bool   `json:"ssl" yaml:"ssl" hcl:"ssl,optional"`
}

// URL returns the base URL of the executor.
func (a Address) URL() string {
	scheme := "http"
	if a.SSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(a.Host, strconv.Itoa(a.Port)))
}

// Valid reports whether the address names a host and a port.
func (a *Address) Valid() bool {
	return a != nil && a.Host != "" && a.Port > 0
}

// Options are the run options of one flow execution. They are read-only
// once the run starts.
type Options struct {
	TestMode        bool     `json:"test_mode" yaml:"test_mode"`
	TraceMode       bool     `json:"trace_mode" yaml:"trace_mode"`
	ExecutorAddress *Address `json:"executor_address,omitempty" yaml:"executor_address,omitempty"`
}
