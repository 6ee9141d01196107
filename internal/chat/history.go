package chat

import "strings"

// MessageHistory - keeps latest chat frames, history.Stack implements it.
type MessageHistory interface {
	Push(frame string)
	// Tail returns up to n latest frames, oldest first.
	Tail(n int) []string
}

// remember - stores broadcast chat frame when history is enabled.
func (s *Server) remember(frame string) {
	if s.history != nil {
		s.history.Push(frame)
	}
}

// recent - frames replayed to newly named session, empty without history.
func (s *Server) recent() string {
	if s.history == nil || s.historyGreets <= 0 {
		return ""
	}
	return strings.Join(s.history.Tail(s.historyGreets), "")
}
