//go:build unix

package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
)

// listenPipe creates the FIFO pair under the base path. The connection
// is established when the shell has opened both ends.
func listenPipe(base string) (Listener, error) {
	inPath := base + pipeSuffixIn
	outPath := base + pipeSuffixOut

	for _, path := range []string{inPath, outPath} {
		if _, err := os.Stat(path); err == nil {
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("remove stale pipe %s: %w", path, err)
			}
		}
		if err := syscall.Mkfifo(path, 0o600); err != nil {
			return nil, fmt.Errorf("mkfifo %s: %w", path, err)
		}
	}

	return &pipeListener{base: base, inPath: inPath, outPath: outPath}, nil
}

type pipeListener struct {
	base    string
	inPath  string
	outPath string
}

// Accept opens both FIFOs. Each open blocks until the shell opens the
// opposite end; the two opens run concurrently and the connection is
// reported only once both have completed.
func (l *pipeListener) Accept(ctx context.Context) (Conn, error) {
	inCh := openAsync(l.inPath, os.O_WRONLY)
	outCh := openAsync(l.outPath, os.O_RDONLY)
	return awaitPipePair(ctx, outCh, inCh)
}

func (l *pipeListener) Addr() string {
	return l.base
}

func (l *pipeListener) Close() error {
	return errors.Join(os.Remove(l.inPath), os.Remove(l.outPath))
}

// dialPipe opens the shell side of the FIFO pair: reads from -in,
// writes to -out.
func dialPipe(ctx context.Context, base string) (Conn, error) {
	inCh := openAsync(base+pipeSuffixIn, os.O_RDONLY)
	outCh := openAsync(base+pipeSuffixOut, os.O_WRONLY)
	return awaitPipePair(ctx, inCh, outCh)
}

type openResult struct {
	file *os.File
	err  error
}

// openAsync opens a FIFO in a goroutine. FIFO opens block until the
// peer opens the opposite end, which cannot be interrupted portably;
// cancellation is handled by the caller abandoning the channel, and the
// file is closed if the open completes afterwards.
func openAsync(path string, flag int) <-chan openResult {
	ch := make(chan openResult, 1)
	go func() {
		f, err := os.OpenFile(path, flag, 0)
		ch <- openResult{f, err}
	}()
	return ch
}

// awaitPipePair waits for both channel opens and composes the result.
func awaitPipePair(ctx context.Context, readCh, writeCh <-chan openResult) (Conn, error) {
	var r, w *os.File
	for i := 0; i < 2; i++ {
		select {
		case <-ctx.Done():
			closeLater(readCh, r)
			closeLater(writeCh, w)
			return nil, ctx.Err()
		case res := <-readCh:
			if res.err != nil {
				closeLater(writeCh, w)
				return nil, fmt.Errorf("open read pipe: %w", res.err)
			}
			r = res.file
			readCh = nil
		case res := <-writeCh:
			if res.err != nil {
				closeLater(readCh, r)
				return nil, fmt.Errorf("open write pipe: %w", res.err)
			}
			w = res.file
			writeCh = nil
		}
	}
	return &pipeConn{r: r, w: w}, nil
}

// closeLater closes an already-opened file, and drains a still-pending
// open so its file does not leak once it completes.
func closeLater(ch <-chan openResult, f *os.File) {
	if f != nil {
		_ = f.Close()
	}
	if ch == nil {
		return
	}
	go func() {
		if res := <-ch; res.file != nil {
			_ = res.file.Close()
		}
	}()
}
