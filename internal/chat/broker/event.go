package broker

// PartAction - describes the type of parting with client (connection).
type PartAction int

const (
	_ PartAction = iota
	// PartActionLeft - the parting is occurred due to connection was closed or client quit.
	PartActionLeft
	// PartActionTimeout - the parting is occurred due to idle timeout.
	PartActionTimeout
)

func (a PartAction) String() string {
	switch a {
	case PartActionTimeout:
		return "timed out"
	case PartActionLeft:
		fallthrough
	default:
		return "left the chat"
	}
}
