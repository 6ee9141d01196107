package chat

import (
	"errors"
	"fmt"
)

// Code - class of recoverable command failure.
type Code int

const (
	_ Code = iota
	// CodeProtocol - malformed metadata, unexpected token or too long line.
	CodeProtocol
	// CodeTimeout - transfer chunk was not moved before its deadline.
	CodeTimeout
	// CodeIncomplete - peer closed the stream before declared size was moved.
	CodeIncomplete
	// CodeNotFound - requested file is not in catalog.
	CodeNotFound
	// CodeTooLarge - declared upload size exceeds configured maximum.
	CodeTooLarge
	// CodeStorage - local file could not be created, written or read.
	CodeStorage
	// CodeShutdown - operation was interrupted by server shutdown.
	CodeShutdown
)

func (c Code) String() string {
	switch c {
	case CodeProtocol:
		return "protocol"
	case CodeTimeout:
		return "timeout"
	case CodeIncomplete:
		return "incomplete"
	case CodeNotFound:
		return "not_found"
	case CodeTooLarge:
		return "too_large"
	case CodeStorage:
		return "storage"
	case CodeShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// CommandError - recoverable failure of a single command.
// It is reported to the initiating session only and never broadcast.
type CommandError struct {
	Code   Code
	Reason string
	Err    error
}

func newCommandError(code Code, reason string, err error) *CommandError {
	return &CommandError{Code: code, Reason: reason, Err: err}
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Reply - protocol frame reporting the failure to the client.
func (e *CommandError) Reply() string {
	return "ERROR|" + e.Reason + "\n"
}

var (
	// ErrConnectionLost - read or write failure outside recoverable paths, the session is terminated.
	ErrConnectionLost = errors.New("chat: connection lost")

	// ErrServerClosed - returns by Serve after Shutdown.
	ErrServerClosed = errors.New("chat: server closed")

	// ErrForcedShutdown - some sessions did not finish in time and their connections were closed.
	ErrForcedShutdown = errors.New("chat: forced shutdown")
)
