package message

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrLineTooLong - inbound line exceeds the configured maximum.
// The rest of the line is discarded, so the next read starts at a new line.
var ErrLineTooLong = errors.New("line too long")

// ReadLine - reads one line terminated by "\n" or "\r\n" without its terminator.
// A final line without terminator is returned before io.EOF.
func ReadLine(r *bufio.Reader, max int) (string, error) {
	var (
		line    []byte
		tooLong bool
	)
	for {
		frag, err := r.ReadSlice('\n')
		if !tooLong {
			line = append(line, frag...)
			if len(trimEOL(line)) > max {
				tooLong, line = true, nil
			}
		}
		switch {
		case err == nil:
			if tooLong {
				return "", ErrLineTooLong
			}
			return string(trimEOL(line)), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == io.EOF && tooLong:
			return "", ErrLineTooLong
		case err == io.EOF && len(line) > 0:
			return string(trimEOL(line)), nil
		default:
			return "", err
		}
	}
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}
