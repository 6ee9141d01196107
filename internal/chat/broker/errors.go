package broker

import "errors"

var (
	// ErrUnderStopCondition - returns in case if Broker is under stop condition
	// and will not accept any new sessions, so you should close such connection by your own.
	ErrUnderStopCondition = errors.New("broker.Broker: under stop condition")

	// ErrUnknownSession - returns when message is addressed to unregistered session.
	ErrUnknownSession = errors.New("broker.Broker: unknown session")

	// ErrOutboxFull - returns by Outbox.Push when unreserved queue reached its limit,
	// the outbox is closed together with its connection.
	ErrOutboxFull = errors.New("broker.Outbox: queue is full")

	// ErrOutboxClosed - returns after Outbox was closed or its connection failed.
	ErrOutboxClosed = errors.New("broker.Outbox: closed")
)
