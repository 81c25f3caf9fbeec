package domain

// Event is an incoming update that a command handler runs for.
// It is either a BareMessage or a WrappedEvent.
type Event interface {
	isEvent()
}

// BareMessage is a plain message; the acting user is its sender.
type BareMessage struct {
	Message Message
}

// WrappedEvent is an update that carries another message, such as a button
// callback or an edited message. The acting user is the outer event's user,
// which may differ from the inner message's sender.
type WrappedEvent struct {
	UserID  int64
	Message Message
	Data    string
}

func (BareMessage) isEvent()  {}
func (WrappedEvent) isEvent() {}

// Unwrap returns the message the event refers to and the id of the user acting on it.
func Unwrap(ev Event) (Message, int64) {
	switch e := ev.(type) {
	case BareMessage:
		return e.Message, e.Message.FromID
	case *BareMessage:
		return e.Message, e.Message.FromID
	case WrappedEvent:
		return e.Message, e.UserID
	case *WrappedEvent:
		return e.Message, e.UserID
	default:
		return Message{}, 0
	}
}
