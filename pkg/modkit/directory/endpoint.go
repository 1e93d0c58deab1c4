// Package directory tracks live module instances: registration, heartbeat
// liveness, state transitions and round-robin selection.
package directory

import (
	"fmt"
	"net"
	"strings"
)

// Endpoint is a reachable address of a module instance, carried as a URI.
type Endpoint struct {
	URI string
}

// EndpointKind is the parsed view of an endpoint URI.
type EndpointKind int

const (
	KindOpaque EndpointKind = iota
	KindTCP
	KindUDS
	KindPipe
)

// FromURI wraps a raw URI as an endpoint.
func FromURI(uri string) Endpoint {
	return Endpoint{URI: uri}
}

// TCP builds an http://host:port endpoint.
func TCP(host string, port int) Endpoint {
	return Endpoint{URI: fmt.Sprintf("http://%s:%d", host, port)}
}

// UDS builds a unix://path endpoint.
func UDS(path string) Endpoint {
	return Endpoint{URI: "unix://" + path}
}

// Kind parses the endpoint URI into a typed view. The returned string is the
// socket address for TCP, the socket path for UDS, the pipe name for pipes and
// the raw URI otherwise.
func (e Endpoint) Kind() (EndpointKind, string) {
	if path, ok := strings.CutPrefix(e.URI, "unix://"); ok {
		return KindUDS, path
	}
	if name, ok := strings.CutPrefix(e.URI, "pipe://"); ok {
		return KindPipe, name
	}
	if name, ok := strings.CutPrefix(e.URI, "npipe://"); ok {
		return KindPipe, name
	}
	if rest, ok := strings.CutPrefix(e.URI, "http://"); ok {
		if _, _, err := net.SplitHostPort(rest); err == nil {
			return KindTCP, rest
		}
	}
	return KindOpaque, e.URI
}

func (e Endpoint) String() string { return e.URI }
