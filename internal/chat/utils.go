package chat

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/wtask/sharechat/internal/chat/broker"
	"github.com/wtask/sharechat/internal/chat/catalog"
)

const helpText = `Commands:
  /quit          - Exit the chat
  /users         - List online users
  /files         - List shared files
  /upload        - Upload a file (then send <name>|<size>)
  /download      - Download a file (then send <name>)
  /help          - Show this help message

Type your message to chat with everyone!
----------------------------------------
`

const (
	namePrompt  = "Enter your name:\n"
	byeMessage  = "[BYE] Goodbye!\n"
	readyFrame  = "READY\n"
	okFrame     = "OK\n"
	serverFull  = "ERROR|server is full\n"
	noFilesList = "[FILES] No files available yet.\n"
)

// formatMessage - formats chat message.
func formatMessage(t time.Time, author, body string) string {
	body = strings.TrimSuffix(body, "\n")
	return fmt.Sprintf("[%s] %s: %s\n", t.Format("15:04:05"), author, body)
}

// welcomeMessage - greeting sent once the session is named.
func welcomeMessage(name string) string {
	return fmt.Sprintf("Welcome to the chat, %s!\n%s", name, helpText)
}

// joinNotice - broadcast when a session is named.
func joinNotice(name string) string {
	return fmt.Sprintf("* %s joined the chat *\n", name)
}

// partNotice - broadcast when a named session is gone.
func partNotice(name string, a broker.PartAction) string {
	return fmt.Sprintf("* %s %s *\n", name, a)
}

// uploadNotice - broadcast after verified upload.
func uploadNotice(e catalog.Entry) string {
	return fmt.Sprintf("[FILE] %s uploaded '%s' (%d bytes)\n", e.Uploader, e.Name, e.Size)
}

// downloadOffer - reply to download request for present file.
func downloadOffer(size int64) string {
	return fmt.Sprintf("OK|%d\n", size)
}

// formatUsers - /users listing.
func formatUsers(members []broker.Entry) string {
	b := &strings.Builder{}
	b.WriteString("[USERS] Online users:\n")
	for i, m := range members {
		fmt.Fprintf(b, "  %d. %s\n", i+1, m.Name)
	}
	return b.String()
}

// formatFiles - /files listing.
func formatFiles(files []catalog.Entry) string {
	if len(files) == 0 {
		return noFilesList
	}
	b := &strings.Builder{}
	b.WriteString("[FILES] Available files:\n")
	for i, f := range files {
		fmt.Fprintf(b, "  %d. %s (%d bytes) - uploaded by %s at %s\n",
			i+1, f.Name, f.Size, f.Uploader, f.UploadedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// formatAddress - formats specified network address for logging purposes.
func formatAddress(a net.Addr) string {
	if a == nil {
		return ""
	}
	return fmt.Sprintf("%s %s", a.Network(), a.String())
}
