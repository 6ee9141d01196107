package logger

// Standard field keys for structured logging.
// Use these keys consistently so that log lines can be queried by field.
const (
	// Session & connection
	KeySessionID  = "session_id"
	KeyClientIP   = "client_ip"
	KeyAddress    = "address"
	KeyUsername   = "username"
	KeyActive     = "active"
	KeyPartAction = "action"

	// Protocol
	KeyCommand = "command"
	KeyReason  = "reason"
	KeyCode    = "code"

	// Files & transfers
	KeyFilename  = "filename"
	KeySize      = "size"
	KeyBytes     = "bytes"
	KeyDirection = "direction"
	KeyPath      = "path"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyRecipients = "recipients"
)
