package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/wtask/sharechat/internal/chat/broker"
	"github.com/wtask/sharechat/internal/chat/message"
	"github.com/wtask/sharechat/internal/chat/transfer"
	"github.com/wtask/sharechat/internal/logger"
)

// sender - anything able to write a whole protocol frame: the outbox itself
// or its reservation held during a transfer.
type sender interface {
	Send(message string) error
}

// session - serves one accepted connection from the name prompt until disconnect.
type session struct {
	server      *Server
	conn        net.Conn
	reader      *bufio.Reader
	outbox      *broker.Outbox
	addr        string
	connectedAt time.Time
	state       stateHolder
	partAction  broker.PartAction

	mu          sync.Mutex
	id          broker.ID
	name        string
	interrupted bool
}

func newSession(s *Server, conn net.Conn) *session {
	return &session{
		server:      s,
		conn:        conn,
		reader:      bufio.NewReader(conn),
		addr:        conn.RemoteAddr().String(),
		connectedAt: time.Now(),
		partAction:  broker.PartActionLeft,
	}
}

// run - session lifecycle, executed as a member of server scope.
func (s *session) run(ctx context.Context) {
	s.outbox = broker.NewOutbox(s.conn, s.server.outboxSize, s.server.writeTimeout)
	stop := context.AfterFunc(ctx, s.interrupt)
	defer stop()
	defer s.terminate()

	logger.Debug("connection accepted", logger.KeyClientIP, formatAddress(s.conn.RemoteAddr()))

	if err := s.greet(ctx); err != nil {
		logger.Debug("session was not named", logger.KeyClientIP, s.addr, logger.KeyError, err)
		return
	}
	if err := s.serve(ctx); err != nil {
		logger.Debug("session is over",
			logger.KeySessionID, string(s.id),
			logger.KeyUsername, s.name,
			logger.KeyError, err,
		)
	}
}

// greet - asks for display name and registers the session.
func (s *session) greet(ctx context.Context) error {
	s.state.store(StateConnecting)
	if err := s.write(namePrompt); err != nil {
		return err
	}
	var name string
	for {
		s.armIdle()
		line, err := message.ReadLine(s.reader, s.server.maxLineLength)
		if errors.Is(err, message.ErrLineTooLong) {
			if err := s.reject(s.outbox, newCommandError(CodeProtocol, "line too long", err)); err != nil {
				return err
			}
			if err := s.write(namePrompt); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return s.readFailure(ctx, err)
		}
		name = displayName(line, s.conn.RemoteAddr())
		break
	}
	s.state.store(StateNamed)

	// welcome must precede any notice pushed to the new session
	res := s.outbox.Reserve()
	id, err := s.server.broker.Join(name, s.addr, s.outbox)
	if err != nil {
		res.Release()
		return err
	}
	s.setIdentity(id, name)
	s.server.metrics.SessionJoined()
	s.server.broker.Broadcast(joinNotice(name), id)
	greeting := welcomeMessage(name) + s.server.recent()
	err = res.Send(greeting)
	res.Release()

	logger.Info("session joined",
		logger.KeySessionID, string(id),
		logger.KeyUsername, name,
		logger.KeyClientIP, s.addr,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	s.state.store(StateActive)
	return nil
}

// serve - reads lines until the session is over.
func (s *session) serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.armIdle()
		line, err := message.ReadLine(s.reader, s.server.maxLineLength)
		if errors.Is(err, message.ErrLineTooLong) {
			if err := s.reject(s.outbox, newCommandError(CodeProtocol, "line too long", err)); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return s.readFailure(ctx, err)
		}

		cmd, ok := message.ParseCommand(line)
		if !ok {
			s.chat(line)
			continue
		}
		s.server.metrics.Command(cmd.Name)
		quit, err := s.dispatch(ctx, cmd)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

// dispatch - executes command. Recoverable failures are reported to the client,
// only connection-level errors are returned.
func (s *session) dispatch(ctx context.Context, cmd message.Command) (quit bool, err error) {
	switch cmd.Name {
	case message.CommandQuit:
		return true, s.write(byeMessage)
	case message.CommandUsers:
		return false, s.write(formatUsers(s.server.broker.Members()))
	case message.CommandFiles:
		return false, s.write(formatFiles(s.server.files.Snapshot()))
	case message.CommandHelp:
		return false, s.write(helpText)
	case message.CommandUpload:
		err = s.upload(ctx, cmd.Arg)
	case message.CommandDownload:
		err = s.download(ctx, cmd.Arg)
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return false, s.reject(s.outbox, ce)
	}
	return false, err
}

// chat - broadcasts text line to everyone else.
func (s *session) chat(line string) {
	text := message.Sanitize(line)
	if text == "" {
		return
	}
	frame := formatMessage(time.Now(), s.name, text)
	s.server.remember(frame)
	s.server.broker.Broadcast(frame, s.id)
}

// write - direct reply, serialized with pushed messages.
func (s *session) write(frame string) error {
	if err := s.outbox.Send(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

// reject - reports command failure to the client through w.
func (s *session) reject(w sender, ce *CommandError) error {
	logger.Warn("command failed",
		logger.KeySessionID, string(s.id),
		logger.KeyUsername, s.name,
		logger.KeyCode, ce.Code.String(),
		logger.KeyReason, ce.Reason,
		logger.KeyError, ce.Err,
	)
	if err := w.Send(ce.Reply()); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

// readHandshake - reads one line of transfer handshake under the transfer deadline.
func (s *session) readHandshake(ctx context.Context) (string, error) {
	s.SetReadDeadline(time.Now().Add(s.server.engine.Timeout()))
	line, err := message.ReadLine(s.reader, s.server.maxLineLength)
	switch {
	case err == nil:
		return line, nil
	case errors.Is(err, message.ErrLineTooLong):
		return "", newCommandError(CodeProtocol, "line too long", err)
	case ctx.Err() != nil:
		return "", newCommandError(CodeShutdown, "server shutting down", err)
	case transfer.IsTimeout(err):
		return "", newCommandError(CodeTimeout, "timeout", err)
	default:
		return "", fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
}

// readFailure - explains why a line could not be read.
func (s *session) readFailure(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case transfer.IsTimeout(err):
		s.partAction = broker.PartActionTimeout
		return fmt.Errorf("idle timeout: %w", err)
	case errors.Is(err, io.EOF):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
}

// armIdle - read deadline of the next line.
func (s *session) armIdle() {
	var t time.Time
	if s.server.idleTimeout > 0 {
		t = time.Now().Add(s.server.idleTimeout)
	}
	s.SetReadDeadline(t)
}

// SetReadDeadline - sets connection read deadline unless the session
// was interrupted by shutdown, then every read fails immediately.
func (s *session) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interrupted {
		t = time.Now()
	}
	return s.conn.SetReadDeadline(t)
}

// interrupt - releases blocked read on server shutdown.
func (s *session) interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupted = true
	s.conn.SetReadDeadline(time.Now())
}

func (s *session) setIdentity(id broker.ID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id, s.name = id, name
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:          string(s.id),
		Name:        s.name,
		Address:     s.addr,
		State:       s.state.load().String(),
		ConnectedAt: s.connectedAt,
	}
}

// terminate - unregisters session exactly once and releases its connection.
func (s *session) terminate() {
	s.state.store(StateDisconnected)
	if s.id != "" {
		if _, ok := s.server.broker.Part(s.id); ok {
			s.server.broker.Broadcast(partNotice(s.name, s.partAction), s.id)
			s.server.metrics.SessionLeft()
			logger.Info("session left",
				logger.KeySessionID, string(s.id),
				logger.KeyUsername, s.name,
				logger.KeyPartAction, s.partAction.String(),
			)
		}
	}
	s.conn.Close()
	s.outbox.Close()
	s.server.release(s)
}
