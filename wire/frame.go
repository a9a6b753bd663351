// Package wire implements the framed bridge protocol: a 4-byte
// little-endian length prefix followed by a UTF-8 JSON body, in both
// directions, on every transport.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/casement-ui/casement/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including the
	// length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum body size.
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated frame: the stream ended
	// mid-prefix or mid-body.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a length prefix exceeding MaxPayloadSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a body that is not valid JSON for its
	// expected shape.
	FrameErrorDecode
)

// FrameError represents a framing or body-decode error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the error terminates the connection. Partial
// and oversized frames mean the stream can no longer be re-synchronized;
// a body that fails to decode only discards that message.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError reports whether err is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Decoder reads length-prefixed frames from a byte stream. io.ReadFull
// buffers bodies split across arbitrarily many reads; a frame is never
// surfaced until all of its bytes have arrived.
type Decoder struct {
	reader io.Reader
}

// NewDecoder creates a frame decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: r}
}

// ReadFrame reads a single frame body.
//
// Errors:
//   - io.EOF: stream ended cleanly between frames
//   - *FrameError with Kind=FrameErrorPartial: truncated frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: oversized frame (fatal)
func (d *Decoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	bodySize := binary.LittleEndian.Uint32(lengthBuf[:])
	if bodySize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("body size %d exceeds maximum %d", bodySize, MaxPayloadSize),
		}
	}

	body := make([]byte, bodySize)
	if _, err := io.ReadFull(d.reader, body); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read body",
			Err:  err,
		}
	}

	return body, nil
}

// EncodeFrame prepends the little-endian length prefix to body.
func EncodeFrame(body []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(body))
	binary.LittleEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(body)))
	copy(buf[LengthPrefixSize:], body)
	return buf
}

// Encoder writes length-prefixed frames to a byte stream. All writes
// are serialized through one mutex so concurrent callers cannot
// interleave partial frames.
type Encoder struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewEncoder creates a frame encoder over w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: w}
}

// WriteFrame writes one frame. Header and body go out in a single
// Write call so a crash between them cannot leave a torn frame.
func (e *Encoder) WriteFrame(body []byte) error {
	if len(body) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("body size %d exceeds maximum %d", len(body), MaxPayloadSize),
		}
	}

	buf := EncodeFrame(body)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.writer.Write(buf); err != nil {
		return fmt.Errorf("frame write: %w", err)
	}
	return nil
}

// WriteJSON marshals v and writes it as one frame.
func (e *Encoder) WriteJSON(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("frame marshal: %w", err)
	}
	return e.WriteFrame(body)
}

// WriteCommand marshals a command variant and writes it as one frame.
func (e *Encoder) WriteCommand(cmd types.Command) error {
	body, err := types.MarshalCommand(cmd)
	if err != nil {
		return fmt.Errorf("frame marshal: %w", err)
	}
	return e.WriteFrame(body)
}

// DecodeEnvelope decodes a body as a shell-to-host envelope.
func DecodeEnvelope(body []byte) (*types.Envelope, error) {
	var envelope types.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode envelope",
			Err:  err,
		}
	}
	return &envelope, nil
}

// DecodeCommand decodes a body as a host-to-shell command.
func DecodeCommand(body []byte) (types.Command, error) {
	cmd, err := types.UnmarshalCommand(body)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode command",
			Err:  err,
		}
	}
	return cmd, nil
}
