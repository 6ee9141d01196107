package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for chat spans.
const (
	AttrClientAddr = "client.address"
	AttrUsername   = "chat.username"
	AttrSessionID  = "chat.session_id"
	AttrDirection  = "transfer.direction"
	AttrFilename   = "transfer.filename"
	AttrSize       = "transfer.size"
	AttrMoved      = "transfer.bytes_moved"
	AttrErrorCode  = "transfer.error_code"
)

// Span names.
const (
	SpanUpload   = "sharechat.upload"
	SpanDownload = "sharechat.download"
)

// StartTransferSpan opens a server span for one file transfer.
func StartTransferSpan(ctx context.Context, name, sessionID, username, clientAddr string) (context.Context, trace.Span) {
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.String(AttrUsername, username),
			attribute.String(AttrClientAddr, clientAddr),
		),
	)
}

// Filename returns the attribute for a transfer target.
func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

// Size returns the attribute for a declared transfer size.
func Size(n int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, n)
}

// Moved returns the attribute for the bytes actually transferred.
func Moved(n int64) attribute.KeyValue {
	return attribute.Int64(AttrMoved, n)
}

// ErrorCode returns the attribute for a failed transfer's error code.
func ErrorCode(code string) attribute.KeyValue {
	return attribute.String(AttrErrorCode, code)
}
