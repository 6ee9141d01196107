package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

const (
	// DefaultChunkSize - bytes moved per I/O call.
	DefaultChunkSize = 4096
	// DefaultTimeout - deadline of every chunk.
	DefaultTimeout = 30 * time.Second
)

// Direction - side of file movement from the server point of view.
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// Transfer - state of one file operation. At most one exists per session.
type Transfer struct {
	Direction Direction
	Name      string
	Size      int64
	Moved     int64
	Started   time.Time
	Deadline  time.Time // deadline of the current chunk
}

// New - starts transfer bookkeeping.
func New(d Direction, name string, size int64) *Transfer {
	return &Transfer{
		Direction: d,
		Name:      name,
		Size:      size,
		Started:   time.Now(),
	}
}

// Remaining - bytes left to move.
func (t *Transfer) Remaining() int64 {
	return t.Size - t.Moved
}

// ReadDeadliner - connection side receiving bytes.
type ReadDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// WriteDeadliner - connection side sending bytes.
type WriteDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Engine - moves transfer payload in chunks, every chunk under its own deadline.
type Engine struct {
	chunkSize int
	timeout   time.Duration
}

// NewEngine - builds engine, zero values select defaults.
func NewEngine(chunkSize int, timeout time.Duration) *Engine {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{chunkSize: chunkSize, timeout: timeout}
}

// ChunkSize - configured chunk size.
func (e *Engine) ChunkSize() int {
	return e.chunkSize
}

// Timeout - configured per-chunk deadline.
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// Receive - reads exactly t.Size bytes from peer into dst.
// The src reader may hold bytes already buffered from the connection.
// When dst fails the rest of payload is still read and discarded,
// then ErrStorage is returned.
func (e *Engine) Receive(ctx context.Context, t *Transfer, src io.Reader, dl ReadDeadliner, dst io.Writer) error {
	buf := make([]byte, e.chunkSize)
	var storageErr error
	for t.Moved < t.Size {
		if ctx.Err() != nil {
			return ErrCanceled
		}
		n := int64(len(buf))
		if r := t.Remaining(); r < n {
			n = r
		}
		t.Deadline = time.Now().Add(e.timeout)
		dl.SetReadDeadline(t.Deadline)

		read, err := src.Read(buf[:n])
		if read > 0 {
			if storageErr == nil {
				if _, werr := dst.Write(buf[:read]); werr != nil {
					storageErr = fmt.Errorf("%w: %v", ErrStorage, werr)
				}
			}
			t.Moved += int64(read)
		}
		if err != nil && t.Moved < t.Size {
			return classify(ctx, err)
		}
	}
	return storageErr
}

// Send - writes exactly t.Size bytes of src to peer.
func (e *Engine) Send(ctx context.Context, t *Transfer, dst io.Writer, dl WriteDeadliner, src io.Reader) error {
	buf := make([]byte, e.chunkSize)
	for t.Moved < t.Size {
		if ctx.Err() != nil {
			return ErrCanceled
		}
		n := int64(len(buf))
		if r := t.Remaining(); r < n {
			n = r
		}
		read, err := io.ReadFull(src, buf[:n])
		if err != nil {
			return fmt.Errorf("%w: read %q after %d bytes: %v", ErrStorage, t.Name, t.Moved+int64(read), err)
		}

		t.Deadline = time.Now().Add(e.timeout)
		dl.SetWriteDeadline(t.Deadline)
		written, err := dst.Write(buf[:read])
		t.Moved += int64(written)
		if err != nil {
			return classify(ctx, err)
		}
	}
	return nil
}

// classify - maps connection error into transfer error.
func classify(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ErrCanceled
	case IsTimeout(err):
		return ErrTimeout
	default:
		return fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
}

// IsTimeout - reports whether err is a deadline expiration.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
