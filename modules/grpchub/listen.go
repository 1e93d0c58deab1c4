package grpchub

import (
	"fmt"
	"net"
	"runtime"
	"strings"
)

// ListenKind is the transport family of a parsed listen spec.
type ListenKind int

const (
	ListenTCP ListenKind = iota
	ListenUDS
	ListenPipe
)

// ListenSpec is a validated gRPC listen configuration.
type ListenSpec struct {
	Kind ListenKind
	// Addr is the host:port for TCP, the socket path for UDS, or the pipe
	// name for named pipes.
	Addr string
}

// ParseListenSpec parses the listen-config grammar:
// "pipe://<name>" or "npipe://<name>" for named pipes (windows only),
// "uds://<path>" for unix domain sockets (unix only),
// anything else as a TCP host:port.
func ParseListenSpec(spec string) (ListenSpec, error) {
	if name, ok := strings.CutPrefix(spec, "pipe://"); ok {
		return parsePipe(name)
	}
	if name, ok := strings.CutPrefix(spec, "npipe://"); ok {
		return parsePipe(name)
	}
	if path, ok := strings.CutPrefix(spec, "uds://"); ok {
		if runtime.GOOS == "windows" {
			return ListenSpec{}, fmt.Errorf("uds listen spec %q is not supported on windows", spec)
		}
		if path == "" {
			return ListenSpec{}, fmt.Errorf("uds listen spec has an empty path")
		}
		return ListenSpec{Kind: ListenUDS, Addr: path}, nil
	}

	if _, _, err := net.SplitHostPort(spec); err != nil {
		return ListenSpec{}, fmt.Errorf("invalid TCP listen address %q: %w", spec, err)
	}
	return ListenSpec{Kind: ListenTCP, Addr: spec}, nil
}

func parsePipe(name string) (ListenSpec, error) {
	if runtime.GOOS != "windows" {
		return ListenSpec{}, fmt.Errorf("named pipe listen spec is only supported on windows")
	}
	if name == "" {
		return ListenSpec{}, fmt.Errorf("named pipe listen spec has an empty name")
	}
	return ListenSpec{Kind: ListenPipe, Addr: name}, nil
}

// Listen binds a listener for the spec. Named pipes are rejected here on
// non-windows platforms by ParseListenSpec already.
func (s ListenSpec) Listen() (net.Listener, error) {
	switch s.Kind {
	case ListenUDS:
		return net.Listen("unix", s.Addr)
	case ListenPipe:
		return nil, fmt.Errorf("named pipe transport requires a windows-specific listener")
	default:
		return net.Listen("tcp", s.Addr)
	}
}
