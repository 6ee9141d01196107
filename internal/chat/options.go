package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/wtask/sharechat/internal/chat/transfer"
	"github.com/wtask/sharechat/internal/metrics"
)

// ServerOption - configures Server built by NewServer.
type ServerOption func(s *Server) error

func setup(s *Server, options ...ServerOption) error {
	if s == nil {
		return nil
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(s); err != nil {
			return err
		}
	}
	return nil
}

// WithMessageHistory - keeps chat lines in history and greets newly named sessions
// with the given number of latest lines.
func WithMessageHistory(h MessageHistory, greets int) ServerOption {
	return func(s *Server) error {
		if h == nil {
			return errors.New("chat.WithMessageHistory: history is nil")
		}
		if greets < 0 {
			return fmt.Errorf("chat.WithMessageHistory: invalid number of greets (%d)", greets)
		}
		s.history = h
		s.historyGreets = greets
		return nil
	}
}

// WithMetrics - records sessions, commands and transfers.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) error {
		s.metrics = m
		return nil
	}
}

// WithTransferEngine - replaces default transfer engine.
func WithTransferEngine(e *transfer.Engine) ServerOption {
	return func(s *Server) error {
		if e == nil {
			return errors.New("chat.WithTransferEngine: engine is nil")
		}
		s.engine = e
		return nil
	}
}

// WithMaxUploadSize - largest accepted declared upload size, 0 means unlimited.
func WithMaxUploadSize(n int64) ServerOption {
	return func(s *Server) error {
		if n < 0 {
			return fmt.Errorf("chat.WithMaxUploadSize: invalid size (%d)", n)
		}
		s.maxUploadSize = n
		return nil
	}
}

// WithMaxLineLength - longest accepted inbound line in bytes.
func WithMaxLineLength(n int) ServerOption {
	return func(s *Server) error {
		if n <= 0 {
			return fmt.Errorf("chat.WithMaxLineLength: invalid length (%d)", n)
		}
		s.maxLineLength = n
		return nil
	}
}

// WithIdleTimeout - disconnects sessions silent for the given period, 0 disables.
func WithIdleTimeout(d time.Duration) ServerOption {
	return func(s *Server) error {
		if d < 0 {
			return fmt.Errorf("chat.WithIdleTimeout: invalid timeout (%s)", d)
		}
		s.idleTimeout = d
		return nil
	}
}

// WithWriteTimeout - deadline of every outbound message, 0 disables.
func WithWriteTimeout(d time.Duration) ServerOption {
	return func(s *Server) error {
		if d < 0 {
			return fmt.Errorf("chat.WithWriteTimeout: invalid timeout (%s)", d)
		}
		s.writeTimeout = d
		return nil
	}
}

// WithOutboxSize - number of pushed messages a session may have pending outside
// of a transfer, a peer falling further behind is disconnected.
func WithOutboxSize(n int) ServerOption {
	return func(s *Server) error {
		if n <= 0 {
			return fmt.Errorf("chat.WithOutboxSize: invalid size (%d)", n)
		}
		s.outboxSize = n
		return nil
	}
}

// WithMaxConnections - limits simultaneously served connections, 0 means unlimited.
func WithMaxConnections(n int) ServerOption {
	return func(s *Server) error {
		if n < 0 {
			return fmt.Errorf("chat.WithMaxConnections: invalid limit (%d)", n)
		}
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
		return nil
	}
}
