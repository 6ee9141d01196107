package broker

import (
	"io"
	"net"
	"sync"
	"time"
)

// Outbox - serializes every outbound write of one connection.
//
// Pushed messages are queued and written by a single background writer,
// direct replies are written synchronously. Both share one write lock, so
// messages never interleave on the wire. A failed write closes the connection,
// which releases the session's blocked reader.
//
// While the outbox is reserved the queue grows without limit and is flushed
// on Release. Otherwise a queue reaching its limit means the peer does not
// keep up with the chat: the connection is closed and the session parts.
type Outbox struct {
	conn         net.Conn
	writeTimeout time.Duration
	limit        int

	mu sync.Mutex // write lock

	queueMu  sync.Mutex
	pending  []string
	reserved bool
	wake     chan struct{}

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// NewOutbox - builds outbox with given queue limit and starts its writer.
func NewOutbox(conn net.Conn, limit int, writeTimeout time.Duration) *Outbox {
	if limit <= 0 {
		limit = 1
	}
	o := &Outbox{
		conn:         conn,
		writeTimeout: writeTimeout,
		limit:        limit,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	go o.maintain()
	return o
}

// Push - queues message for background writing, never blocks.
// Overflow of unreserved outbox closes it and returns ErrOutboxFull.
func (o *Outbox) Push(message string) error {
	select {
	case <-o.done:
		return ErrOutboxClosed
	default:
	}
	o.queueMu.Lock()
	if !o.reserved && len(o.pending) >= o.limit {
		o.queueMu.Unlock()
		o.fail(ErrOutboxFull)
		return ErrOutboxFull
	}
	o.pending = append(o.pending, message)
	o.queueMu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// Send - writes message immediately, waiting for the write lock.
func (o *Outbox) Send(message string) error {
	select {
	case <-o.done:
		return ErrOutboxClosed
	default:
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.write(message)
}

// Reserve - takes the write lock until Release is called.
// Queued messages wait and are flushed on release.
func (o *Outbox) Reserve() *Reservation {
	o.mu.Lock()
	o.queueMu.Lock()
	o.reserved = true
	o.queueMu.Unlock()
	return &Reservation{outbox: o}
}

// Done - closed when outbox is closed or its connection failed.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Err - first write error, if any.
func (o *Outbox) Err() error {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	return o.err
}

// Close - stops the writer and waits for it. Pending messages are dropped.
func (o *Outbox) Close() {
	o.closeOnce.Do(func() {
		close(o.done)
	})
	<-o.stopped
}

func (o *Outbox) maintain() {
	defer close(o.stopped)
	for {
		select {
		case <-o.wake:
		case <-o.done:
			return
		}
		o.mu.Lock()
		err := o.flush(false)
		o.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// flush - writes queued messages until the queue is empty, must be called under write lock.
// With release set the reservation ends together with the last taken batch.
func (o *Outbox) flush(release bool) error {
	for {
		o.queueMu.Lock()
		batch := o.pending
		o.pending = nil
		if len(batch) == 0 && release {
			o.reserved = false
		}
		o.queueMu.Unlock()
		if len(batch) == 0 {
			return nil
		}
		for _, message := range batch {
			select {
			case <-o.done:
				return ErrOutboxClosed
			default:
			}
			if err := o.write(message); err != nil {
				return err
			}
		}
	}
}

// write - must be called under write lock.
func (o *Outbox) write(message string) error {
	if message == "" {
		return nil
	}
	if o.writeTimeout > 0 {
		o.conn.SetWriteDeadline(time.Now().Add(o.writeTimeout))
	}
	_, err := io.WriteString(o.conn, message)
	if err != nil {
		o.fail(err)
	}
	return err
}

func (o *Outbox) fail(err error) {
	o.errMu.Lock()
	if o.err == nil {
		o.err = err
	}
	o.errMu.Unlock()
	o.closeOnce.Do(func() {
		close(o.done)
	})
	// help to immediately release conn by related reader
	o.conn.Close()
}

// Reservation - exclusive write access to outbox connection.
// Send keeps the outbox write timeout, raw Write calls carry no implicit
// deadline and callers set their own.
type Reservation struct {
	outbox   *Outbox
	released bool
}

// Send - writes message with the outbox write timeout.
func (r *Reservation) Send(message string) error {
	return r.outbox.write(message)
}

// Write - raw write into connection.
func (r *Reservation) Write(p []byte) (int, error) {
	n, err := r.outbox.conn.Write(p)
	if err != nil {
		r.outbox.fail(err)
	}
	return n, err
}

// SetWriteDeadline - sets deadline for next raw writes.
func (r *Reservation) SetWriteDeadline(t time.Time) error {
	return r.outbox.conn.SetWriteDeadline(t)
}

// Release - flushes messages queued meanwhile and returns write lock to outbox.
// Safe to call more than once.
func (r *Reservation) Release() {
	if r.released {
		return
	}
	r.released = true
	o := r.outbox
	if err := o.flush(true); err != nil {
		o.queueMu.Lock()
		o.pending = nil
		o.reserved = false
		o.queueMu.Unlock()
	}
	o.mu.Unlock()
}
