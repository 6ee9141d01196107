package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wtask/sharechat/internal/chat/catalog"
	"github.com/wtask/sharechat/internal/chat/message"
	"github.com/wtask/sharechat/internal/chat/transfer"
	"github.com/wtask/sharechat/internal/logger"
	"github.com/wtask/sharechat/internal/metrics"
	"github.com/wtask/sharechat/internal/telemetry"
)

// upload - /upload command: metadata, READY, exactly size bytes, then OK or ERROR.
func (s *session) upload(ctx context.Context, arg string) error {
	meta := arg
	if meta == "" {
		line, err := s.readHandshake(ctx)
		if err != nil {
			return err
		}
		meta = line
	}
	name, size, err := message.ParseUploadMeta(meta)
	if err != nil {
		return newCommandError(CodeProtocol, "invalid metadata", err)
	}
	if max := s.server.maxUploadSize; max > 0 && size > max {
		return newCommandError(CodeTooLarge, fmt.Sprintf("file too large (max %d bytes)", max), nil)
	}
	up, err := s.server.files.Create(name)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidName) {
			return newCommandError(CodeProtocol, "invalid file name", err)
		}
		return newCommandError(CodeStorage, "storage failure", err)
	}
	return s.receive(ctx, up, size)
}

// pendingFile - destination of upload payload, implemented by catalog.Upload.
type pendingFile interface {
	io.Writer
	Name() string
	Commit(uploader string, size int64, at time.Time) (catalog.Entry, error)
	Abort()
}

// receive - takes upload payload while holding the outbox,
// so no pushed message is written in the middle of handshake.
func (s *session) receive(ctx context.Context, up pendingFile, size int64) error {
	tr := transfer.New(transfer.Upload, up.Name(), size)
	ctx, span := telemetry.StartTransferSpan(ctx, telemetry.SpanUpload, string(s.id), s.name, s.addr)
	defer span.End()
	span.SetAttributes(telemetry.Filename(tr.Name), telemetry.Size(size))

	s.state.store(StateTransferring)
	defer s.state.store(StateActive)
	res := s.outbox.Reserve()
	defer res.Release()

	if err := res.Send(readyFrame); err != nil {
		up.Abort()
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	err := s.server.engine.Receive(ctx, tr, s.reader, s, up)
	var entry catalog.Entry
	if err == nil {
		entry, err = up.Commit(s.name, size, time.Now())
		if err != nil {
			err = fmt.Errorf("%w: %v", transfer.ErrStorage, err)
		}
	}
	s.server.metrics.Transfer(metrics.DirectionUpload, tr.Moved, time.Since(tr.Started), err)
	span.SetAttributes(telemetry.Moved(tr.Moved))
	if err != nil {
		up.Abort()
		ce := transferFailure(tr, err)
		telemetry.RecordError(ctx, err)
		span.SetAttributes(telemetry.ErrorCode(ce.Code.String()))
		return s.reject(res, ce)
	}

	if err := res.Send(okFrame); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	res.Release()

	s.server.broker.Broadcast(uploadNotice(entry), s.id)
	logger.Info("upload complete",
		logger.KeySessionID, string(s.id),
		logger.KeyUsername, s.name,
		logger.KeyFilename, entry.Name,
		logger.KeySize, entry.Size,
		logger.KeyDurationMs, logger.Duration(tr.Started),
	)
	return nil
}

// download - /download command: name, OK|size, READY, then exactly size bytes.
func (s *session) download(ctx context.Context, arg string) error {
	name := arg
	if name == "" {
		line, err := s.readHandshake(ctx)
		if err != nil {
			return err
		}
		name = strings.TrimSpace(line)
	}
	entry, f, err := s.server.files.Open(name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return newCommandError(CodeNotFound, "not found", err)
		}
		return newCommandError(CodeStorage, "storage failure", err)
	}
	defer f.Close()
	return s.stream(ctx, entry, f)
}

// stream - sends file content while holding the outbox.
// Failure after the payload has started breaks the stream for the peer,
// so the connection is dropped.
func (s *session) stream(ctx context.Context, entry catalog.Entry, src io.Reader) error {
	tr := transfer.New(transfer.Download, entry.Name, entry.Size)
	ctx, span := telemetry.StartTransferSpan(ctx, telemetry.SpanDownload, string(s.id), s.name, s.addr)
	defer span.End()
	span.SetAttributes(telemetry.Filename(tr.Name), telemetry.Size(tr.Size))

	s.state.store(StateTransferring)
	defer s.state.store(StateActive)
	res := s.outbox.Reserve()
	defer res.Release()

	if err := res.Send(downloadOffer(entry.Size)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	ack, err := s.readHandshake(ctx)
	if err != nil {
		var ce *CommandError
		if errors.As(err, &ce) {
			span.SetAttributes(telemetry.ErrorCode(ce.Code.String()))
			return s.reject(res, ce)
		}
		return err
	}
	if strings.TrimSpace(ack) != message.Ready {
		span.SetAttributes(telemetry.ErrorCode(CodeProtocol.String()))
		return s.reject(res, newCommandError(CodeProtocol, "expected READY", nil))
	}

	err = s.server.engine.Send(ctx, tr, res, res, src)
	res.SetWriteDeadline(time.Time{})
	s.server.metrics.Transfer(metrics.DirectionDownload, tr.Moved, time.Since(tr.Started), err)
	span.SetAttributes(telemetry.Moved(tr.Moved))
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.Warn("download aborted",
			logger.KeySessionID, string(s.id),
			logger.KeyUsername, s.name,
			logger.KeyFilename, entry.Name,
			logger.KeyBytes, tr.Moved,
			logger.KeyError, err,
		)
		return fmt.Errorf("%w: download %q: %v", ErrConnectionLost, entry.Name, err)
	}
	logger.Info("download complete",
		logger.KeySessionID, string(s.id),
		logger.KeyUsername, s.name,
		logger.KeyFilename, entry.Name,
		logger.KeySize, entry.Size,
		logger.KeyDurationMs, logger.Duration(tr.Started),
	)
	return nil
}

// transferFailure - maps transfer error to the reply reported to the client.
func transferFailure(tr *transfer.Transfer, err error) *CommandError {
	switch {
	case errors.Is(err, transfer.ErrCanceled):
		return newCommandError(CodeShutdown, "server shutting down", err)
	case errors.Is(err, transfer.ErrTimeout):
		return newCommandError(CodeTimeout, "timeout", err)
	case errors.Is(err, transfer.ErrIncomplete):
		return newCommandError(CodeIncomplete,
			fmt.Sprintf("incomplete (received %d/%d bytes)", tr.Moved, tr.Size), err)
	default:
		return newCommandError(CodeStorage, "storage failure", err)
	}
}
