package transport

import (
	"context"
	"fmt"
	"net"
	"os"
)

// socketListener wraps a net.Listener for the single-socket bindings.
type socketListener struct {
	ln net.Listener
	// unixPath is removed on Close for unix sockets; empty for tcp.
	unixPath string
}

// listenTCP listens on a loopback TCP address. An address of the form
// ":0" or "127.0.0.1:0" lets the OS pick a free port; Addr reports the
// bound address.
func listenTCP(addr string) (Listener, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen %s: %w", addr, err)
	}
	return &socketListener{ln: ln}, nil
}

// listenUnix listens on a Unix domain socket, removing any stale
// socket file first.
func listenUnix(path string) (Listener, error) {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("unix listen %s: %w", path, err)
	}
	return &socketListener{ln: ln, unixPath: path}, nil
}

func (l *socketListener) Accept(ctx context.Context) (Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		// Unblock the pending Accept; the goroutine closes any
		// connection that races in after cancellation.
		_ = l.ln.Close()
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("accept: %w", r.err)
		}
		return r.conn, nil
	}
}

func (l *socketListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *socketListener) Close() error {
	err := l.ln.Close()
	if l.unixPath != "" {
		_ = os.Remove(l.unixPath)
	}
	return err
}
