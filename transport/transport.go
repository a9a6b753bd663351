// Package transport abstracts the byte stream between the host and the
// rendering shell. Three bindings share one contract: TCP over
// loopback, a Unix domain socket, and a pair of unidirectional named
// pipes composed into one logical duplex.
//
// The host listens and the shell dials; the addressing information
// travels to the shell via its launch flags. Failure of any channel is
// terminal for the whole connection: no protocol state survives a
// severed stream, so the owner is expected to exit rather than
// reconnect.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Kind selects a transport binding.
type Kind string

// Transport kinds.
const (
	// KindTCP connects over a loopback TCP port.
	KindTCP Kind = "tcp"
	// KindUnix connects over a Unix domain socket.
	KindUnix Kind = "unix"
	// KindPipe connects over dual named pipes <base>-in and <base>-out.
	KindPipe Kind = "pipe"
)

// ErrUnsupported is returned when a binding is not available on the
// current platform.
var ErrUnsupported = errors.New("transport not supported on this platform")

// Conn is one logical duplex byte stream. Reads and writes may proceed
// concurrently with each other, but writers must be externally
// serialized (the wire.Encoder does this).
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Listener accepts exactly one shell connection. The bridge protocol
// is strictly one host to one shell.
type Listener interface {
	// Accept blocks until the shell has connected on every required
	// channel, or ctx is done.
	Accept(ctx context.Context) (Conn, error)
	// Addr returns the address to pass to the shell's launch flags.
	Addr() string
	io.Closer
}

// Endpoint identifies a transport binding and its address.
type Endpoint struct {
	Kind Kind
	// Addr is a host:port for tcp, a socket path for unix, or the
	// pipe base path for pipe (the -in/-out suffixes are appended).
	Addr string
}

// String renders the endpoint in kind:addr form.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%s", e.Kind, e.Addr)
}

// ParseEndpoint parses a kind:addr string produced by Endpoint.String.
func ParseEndpoint(s string) (Endpoint, error) {
	kind, addr, ok := strings.Cut(s, ":")
	if !ok || addr == "" {
		return Endpoint{}, fmt.Errorf("malformed endpoint %q, want kind:addr", s)
	}
	switch Kind(kind) {
	case KindTCP, KindUnix, KindPipe:
		return Endpoint{Kind: Kind(kind), Addr: addr}, nil
	default:
		return Endpoint{}, fmt.Errorf("unknown transport kind %q", kind)
	}
}

// Listen opens the host side of the endpoint.
func Listen(ep Endpoint) (Listener, error) {
	switch ep.Kind {
	case KindTCP:
		return listenTCP(ep.Addr)
	case KindUnix:
		return listenUnix(ep.Addr)
	case KindPipe:
		return listenPipe(ep.Addr)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", ep.Kind)
	}
}

// Dial opens the shell side of the endpoint. It returns only once
// every required channel has connected.
func Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	switch ep.Kind {
	case KindTCP:
		return dialStream(ctx, "tcp", ep.Addr)
	case KindUnix:
		return dialStream(ctx, "unix", ep.Addr)
	case KindPipe:
		return dialPipe(ctx, ep.Addr)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", ep.Kind)
	}
}

// dialStream dials a single-socket binding (tcp or unix).
func dialStream(ctx context.Context, network, addr string) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("%s dial %s: %w", network, addr, err)
	}
	return conn, nil
}
