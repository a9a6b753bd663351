package wire

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/casement-ui/casement/types"
)

// Frame directions recorded in capture files.
const (
	DirHostToShell = "h2s"
	DirShellToHost = "s2h"
)

// CaptureHeader is the first record of a capture file.
type CaptureHeader struct {
	Magic   string `msgpack:"magic"`
	Version string `msgpack:"version"`
	// StartedAt is the capture start time in Unix nanoseconds.
	StartedAt int64 `msgpack:"started_at"`
}

// captureMagic identifies casement capture files.
const captureMagic = "casement-capture"

// CapturedFrame is one recorded frame body with its direction and
// arrival time. Bodies are stored verbatim; replaying a capture
// reproduces the wire byte-for-byte.
type CapturedFrame struct {
	Seq       int64  `msgpack:"seq"`
	Direction string `msgpack:"dir"`
	// ObservedAt is the arrival time in Unix nanoseconds.
	ObservedAt int64  `msgpack:"observed_at"`
	Body       []byte `msgpack:"body"`
}

// CaptureWriter appends frame records to a session capture file as a
// msgpack stream. Safe for use from both pump goroutines of a trace
// session.
type CaptureWriter struct {
	mu  sync.Mutex
	enc *msgpack.Encoder
	seq int64
}

// NewCaptureWriter writes the capture header and returns a writer.
func NewCaptureWriter(w io.Writer) (*CaptureWriter, error) {
	enc := msgpack.NewEncoder(w)
	header := CaptureHeader{
		Magic:     captureMagic,
		Version:   types.Version,
		StartedAt: time.Now().UnixNano(),
	}
	if err := enc.Encode(&header); err != nil {
		return nil, fmt.Errorf("capture header: %w", err)
	}
	return &CaptureWriter{enc: enc}, nil
}

// Record appends one frame body with its direction.
func (c *CaptureWriter) Record(direction string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	frame := CapturedFrame{
		Seq:        c.seq,
		Direction:  direction,
		ObservedAt: time.Now().UnixNano(),
		Body:       body,
	}
	if err := c.enc.Encode(&frame); err != nil {
		return fmt.Errorf("capture record: %w", err)
	}
	return nil
}

// ReadCapture reads a full capture file: header plus all frame records.
func ReadCapture(r io.Reader) (*CaptureHeader, []CapturedFrame, error) {
	dec := msgpack.NewDecoder(r)

	var header CaptureHeader
	if err := dec.Decode(&header); err != nil {
		return nil, nil, fmt.Errorf("capture header: %w", err)
	}
	if header.Magic != captureMagic {
		return nil, nil, fmt.Errorf("not a casement capture file (magic %q)", header.Magic)
	}

	var frames []CapturedFrame
	for {
		var frame CapturedFrame
		if err := dec.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return &header, frames, nil
			}
			return nil, nil, fmt.Errorf("capture record %d: %w", len(frames)+1, err)
		}
		frames = append(frames, frame)
	}
}
