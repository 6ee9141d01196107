package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/wtask/sharechat/internal/chat/broker"
	"github.com/wtask/sharechat/internal/chat/catalog"
	"github.com/wtask/sharechat/internal/chat/transfer"
	"github.com/wtask/sharechat/internal/logger"
	"github.com/wtask/sharechat/internal/metrics"
	"github.com/wtask/sharechat/pkg/background"
)

const (
	defaultMaxLineLength = 64 * 1024
	defaultOutboxSize    = 256
	defaultWriteTimeout  = 30 * time.Second

	// forcedCloseGrace - how long sessions are awaited after their connections were force-closed.
	forcedCloseGrace = time.Second
	maxAcceptDelay   = time.Second
)

// Server - represents chat server over any net.Listener implementation.
type Server struct {
	scope *background.Scope

	broker  *broker.Broker
	files   *catalog.Catalog
	engine  *transfer.Engine
	metrics *metrics.Metrics

	history       MessageHistory
	historyGreets int

	maxUploadSize int64
	maxLineLength int
	idleTimeout   time.Duration
	writeTimeout  time.Duration
	outboxSize    int
	slots         chan struct{} // connection limit, nil if unlimited

	mu        sync.Mutex
	listeners map[net.Listener]struct{}

	sessions     sync.Map // *session -> struct{}
	shutdownOnce sync.Once
}

// SessionInfo - point-in-time view of one served connection.
type SessionInfo struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name,omitempty"`
	Address     string    `json:"address"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
}

// NewServer - creates new chat server which ready to serve several network listeners.
func NewServer(buildBroker BrokerBuilder, files *catalog.Catalog, options ...ServerOption) (*Server, error) {
	if buildBroker == nil {
		return nil, errors.New("chat.NewServer: required chat.BrokerBuilder is nil")
	}
	if files == nil {
		return nil, errors.New("chat.NewServer: required catalog.Catalog is nil")
	}
	b, err := buildBroker()
	if err != nil {
		return nil, fmt.Errorf("chat.NewServer: can't build broker: %w", err)
	}
	scope, _ := background.NewScope(context.Background())
	s := &Server{
		scope:         scope,
		broker:        b,
		files:         files,
		maxLineLength: defaultMaxLineLength,
		writeTimeout:  defaultWriteTimeout,
		outboxSize:    defaultOutboxSize,
		listeners:     map[net.Listener]struct{}{},
	}
	if err := setup(s, options...); err != nil {
		return nil, fmt.Errorf("chat.NewServer: %w", err)
	}
	if s.engine == nil {
		s.engine = transfer.NewEngine(0, 0)
	}
	if s.metrics != nil {
		files.OnChange(s.metrics.SetCatalogFiles)
		s.metrics.SetCatalogFiles(files.Len())
	}
	return s, nil
}

// Serve - accepts connections of specified listener until Shutdown.
// Returns nil when stopped by Shutdown and ErrServerClosed when called after it.
func (s *Server) Serve(listener net.Listener) error {
	if listener == nil {
		return errors.New("chat.Server: listener is nil")
	}
	if !s.track(listener) {
		listener.Close()
		return ErrServerClosed
	}
	defer s.untrack(listener)

	logger.Info("chat server is listening", logger.KeyAddress, listener.Addr().String())

	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closing() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("chat.Server: listener closed: %w", err)
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			logger.Warn("accept failed", logger.KeyError, err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-s.scope.Context().Done():
				return nil
			}
			continue
		}
		delay = 0
		s.admit(conn)
	}
}

// Shutdown - stops server with the specified timeout and returns stopping duration.
// Sessions still running after the timeout get their connections closed
// and ErrForcedShutdown is returned.
func (s *Server) Shutdown(timeout time.Duration) (time.Duration, error) {
	from := time.Now()
	var err error
	s.shutdownOnce.Do(func() {
		s.broker.Quit()
		s.scope.Cancel()
		s.mu.Lock()
		for l := range s.listeners {
			l.Close()
		}
		s.mu.Unlock()

		transfers := 0
		for _, info := range s.Sessions() {
			if info.State == StateTransferring.String() {
				transfers++
			}
		}
		logger.Info("chat server is stopping",
			logger.KeyActive, s.ActiveConnections(),
			"transfers", transfers,
		)

		if s.scope.Wait(timeout) {
			return
		}
		forced := 0
		s.sessions.Range(func(key, _ any) bool {
			key.(*session).conn.Close()
			forced++
			return true
		})
		s.scope.Wait(forcedCloseGrace)
		err = fmt.Errorf("%w: %d connection(s) closed", ErrForcedShutdown, forced)
		logger.Warn("chat server forced shutdown", logger.KeyActive, forced)
	})
	return time.Since(from), err
}

// Sessions - snapshot of served connections, named or not.
func (s *Server) Sessions() []SessionInfo {
	list := []SessionInfo{}
	s.sessions.Range(func(key, _ any) bool {
		list = append(list, key.(*session).info())
		return true
	})
	return list
}

// Users - named sessions in join order.
func (s *Server) Users() []broker.Entry {
	return s.broker.Members()
}

// Files - downloadable files in upload order.
func (s *Server) Files() []catalog.Entry {
	return s.files.Snapshot()
}

// ActiveConnections - number of served connections.
func (s *Server) ActiveConnections() int {
	n := 0
	s.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *Server) closing() bool {
	return s.scope.Context().Err() != nil
}

func (s *Server) track(l net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing() {
		return false
	}
	s.listeners[l] = struct{}{}
	return true
}

func (s *Server) untrack(l net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, l)
}

// admit - starts session for accepted connection, never blocks on it.
func (s *Server) admit(conn net.Conn) {
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
		default:
			s.metrics.ConnectionRejected()
			logger.Warn("connection rejected: limit reached",
				logger.KeyClientIP, conn.RemoteAddr().String(),
				logger.KeyActive, cap(s.slots),
			)
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			io.WriteString(conn, serverFull)
			conn.Close()
			return
		}
	}
	sess := newSession(s, conn)
	s.sessions.Store(sess, struct{}{})
	if !s.scope.Go(sess.run) {
		conn.Close()
		s.release(sess)
	}
}

// release - forgets finished session and frees its connection slot.
func (s *Server) release(sess *session) {
	if _, ok := s.sessions.LoadAndDelete(sess); !ok {
		return
	}
	if s.slots != nil {
		<-s.slots
	}
}
