package transport

import (
	"errors"
	"io"
)

// pipeConn composes two unidirectional byte streams into one logical
// duplex connection. Duplex semantics of a single OS pipe are not
// portable; two simplex channels are.
type pipeConn struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (c *pipeConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *pipeConn) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

// Close closes both channels. Severing either half already makes the
// connection unusable, so errors from both are reported together.
func (c *pipeConn) Close() error {
	return errors.Join(c.r.Close(), c.w.Close())
}

// NewPipeConn composes a read channel and a write channel into a Conn.
// Exposed for tests and for in-process loopback wiring.
func NewPipeConn(r io.ReadCloser, w io.WriteCloser) Conn {
	return &pipeConn{r: r, w: w}
}

// Pipe suffixes. The host writes into -in and reads from -out; the
// shell does the opposite.
const (
	pipeSuffixIn  = "-in"
	pipeSuffixOut = "-out"
)
