// Package message models the chat events the bot consumes and the replies it emits.
package message

// Kind tells where an inbound message was posted.
type Kind string

// Inbound message kinds.
const (
	Private Kind = "private"
	Group   Kind = "group"
)

// Event is an inbound chat message. GroupID is zero for private messages.
type Event struct {
	Kind      Kind
	MessageID int64
	UserID    int64
	GroupID   int64
	Text      string
}

// ActionKind selects the outbound delivery target.
type ActionKind string

// Outbound action kinds.
const (
	GroupReply   ActionKind = "group_reply"
	PrivateReply ActionKind = "private_reply"
)

// Action is an outbound reply handed to the transport writer.
// ReplyTo, when non-zero, threads the reply under that message id.
type Action struct {
	Kind    ActionKind
	GroupID int64
	UserID  int64
	ReplyTo int64
	Text    string
}

// ReplyTo builds a threaded reply to ev in the conversation it came from.
func ReplyTo(ev Event, text string) Action {
	if ev.Kind == Group {
		return Action{Kind: GroupReply, GroupID: ev.GroupID, ReplyTo: ev.MessageID, Text: text}
	}
	return Action{Kind: PrivateReply, UserID: ev.UserID, ReplyTo: ev.MessageID, Text: text}
}
