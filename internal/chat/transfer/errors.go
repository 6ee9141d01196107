package transfer

import "errors"

var (
	// ErrTimeout - a chunk was not moved before its deadline.
	ErrTimeout = errors.New("transfer timed out")

	// ErrIncomplete - peer closed the stream before declared size was moved.
	ErrIncomplete = errors.New("transfer incomplete")

	// ErrCanceled - transfer was interrupted by server shutdown.
	ErrCanceled = errors.New("transfer canceled")

	// ErrStorage - local file could not be read or written.
	ErrStorage = errors.New("storage failure")
)
