package message

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Builder - implements io.Writer interface to build single-line message text from byte parts.
// Invalid UTF-8 and control characters are dropped, any whitespace becomes a space.
// An incomplete UTF-8 sequence at the end of a part waits for the next Write.
type Builder struct {
	reminder bytes.Buffer
	str      strings.Builder
}

func (b *Builder) Write(p []byte) (n int, err error) {
	b.reminder.Write(p)
	data := b.reminder.Bytes()

	// keep possibly incomplete sequence at the end for the next Write
	cut := 0
	if i, s := LastValidRune(data); i > -1 {
		cut = i + s
	}
	if len(data)-cut >= utf8.UTFMax {
		// can't be a prefix of a valid rune
		cut = len(data)
	}
	ready := append([]byte(nil), data[:cut]...)
	tail := append([]byte(nil), data[cut:]...)
	b.reminder.Reset()
	b.reminder.Write(tail)

	var prev rune
	for len(ready) > 0 {
		r, size := utf8.DecodeRune(ready)
		ready = ready[size:]
		switch {
		case r == utf8.RuneError:
			// drop
		case r == '\n' || r == '\r':
			// replace continuous EOL with single space
			if prev != '\n' && prev != '\r' {
				b.str.WriteByte(' ')
			}
		case unicode.IsSpace(r):
			b.str.WriteByte(' ')
		case unicode.IsControl(r):
			// drop
		default:
			b.str.WriteRune(r)
		}
		prev = r
	}
	return len(p), nil
}

// Len - returns length (in bytes) of ready string.
func (b *Builder) Len() int {
	return b.str.Len()
}

// Total - return total size in bytes of underlying data.
// Total value may be grater than length of ready string.
func (b *Builder) Total() int {
	return b.Len() + b.reminder.Len()
}

// Flush - returns built string and resets internal builder
func (b *Builder) Flush() string {
	defer b.str.Reset()
	return b.str.String()
}

// Sanitize - turns raw inbound text into printable single-line text
// with collapsed whitespace.
func Sanitize(s string) string {
	b := Builder{}
	b.Write([]byte(s))
	return strings.Join(strings.Fields(b.Flush()), " ")
}

// LastValidRune - return index and size in bytes of last well-encoded rune in given slice.
// Returns (-1, 0) if source does not contain valid unicode code points.
func LastValidRune(s []byte) (i, size int) {
	for end := len(s); end > 0; {
		r, n := utf8.DecodeLastRune(s[:end])
		if r != utf8.RuneError {
			return end - n, n
		}
		end -= n
	}
	return -1, 0
}
