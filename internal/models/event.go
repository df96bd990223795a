package models

// ChatKind tells the router which context an event originated from.
type ChatKind string

const (
	ChatGroup  ChatKind = "group"
	ChatDirect ChatKind = "direct"
)

// Peer is the identity snapshot the transport could extract for a
// participant of an inbound message.
type Peer struct {
	ID     int64
	Handle string
	Name   string
}

// Event is the structured shape the chat transport hands to the
// router. Everything platform-specific stays on the transport side.
type Event struct {
	ChatID    int64
	ChatKind  ChatKind
	MessageID int
	Sender    Peer
	// ReplyTo is the author of the quoted message, when the event was
	// sent as a reply. Nil otherwise.
	ReplyTo *Peer
	Command string
	Args    string
}

// FromGroup reports whether the event originated in a group chat.
func (e *Event) FromGroup() bool {
	return e.ChatKind == ChatGroup
}
