//go:build windows

package transport

import "context"

// Win32 named pipes need a CreateNamedPipeW-based implementation that
// has no stdlib surface. Windows hosts use the tcp binding; the dual
// FIFO binding is unix-only.
// TODO: implement \\.\pipe\ support via golang.org/x/sys/windows.

func listenPipe(string) (Listener, error) {
	return nil, ErrUnsupported
}

func dialPipe(context.Context, string) (Conn, error) {
	return nil, ErrUnsupported
}
