package chat

import (
	"net"
	"unicode/utf8"

	"github.com/wtask/sharechat/internal/chat/message"
)

// MaxNameLength - longest display name in runes, longer names are cut.
const MaxNameLength = 64

// displayName - sanitizes name line received from client.
// Empty result is replaced with the name derived from remote address.
func displayName(line string, remote net.Addr) string {
	name := message.Sanitize(line)
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	if name == "" {
		return defaultName(remote)
	}
	return name
}

func defaultName(remote net.Addr) string {
	if remote == nil {
		return "User_unknown"
	}
	return "User_" + remote.String()
}
