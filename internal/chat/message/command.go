package message

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command names, recognized only as the first token of a line.
const (
	CommandUsers    = "/users"
	CommandFiles    = "/files"
	CommandUpload   = "/upload"
	CommandDownload = "/download"
	CommandHelp     = "/help"
	CommandQuit     = "/quit"
)

// Ready - handshake token confirming the receiver can take raw bytes.
const Ready = "READY"

var commands = map[string]bool{
	CommandUsers:    true,
	CommandFiles:    true,
	CommandUpload:   true,
	CommandDownload: true,
	CommandHelp:     true,
	CommandQuit:     true,
}

// Command - parsed command line. Arg is the rest of the line after the command token.
type Command struct {
	Name string
	Arg  string
}

// ParseCommand - recognizes command line. Any other line is chat text.
func ParseCommand(line string) (Command, bool) {
	line = strings.TrimSpace(line)
	name, arg, _ := strings.Cut(line, " ")
	if !commands[name] {
		return Command{}, false
	}
	return Command{Name: name, Arg: strings.TrimSpace(arg)}, true
}

// ErrMalformedMeta - upload metadata line is not "<name>|<size>".
var ErrMalformedMeta = errors.New("invalid metadata")

// ParseUploadMeta - parses "<name>|<size>" with exactly one separator
// and non-negative decimal size.
func ParseUploadMeta(line string) (name string, size int64, err error) {
	if strings.Count(line, "|") != 1 {
		return "", 0, fmt.Errorf("%w: expected <name>|<size>", ErrMalformedMeta)
	}
	name, raw, _ := strings.Cut(line, "|")
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return "", 0, fmt.Errorf("%w: size must be a non-negative integer", ErrMalformedMeta)
	}
	size, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: size out of range", ErrMalformedMeta)
	}
	return name, size, nil
}
