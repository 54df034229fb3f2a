package conversation

import (
	"fmt"
	"time"
)

// EventKind classifies an inbound message.
type EventKind int

const (
	EventText EventKind = iota
	EventEntry
	EventCancel
	EventStart
	EventHelp
	EventUnknownCommand
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventEntry:
		return "entry"
	case EventCancel:
		return "cancel"
	case EventStart:
		return "start"
	case EventHelp:
		return "help"
	case EventUnknownCommand:
		return "unknown_command"
	default:
		return "unknown"
	}
}

// Event is one inbound message tagged with its conversation identity.
// Text may hold a password or code and must never be logged.
type Event struct {
	ConversationID string
	UpdateID       int
	ChatID         int64
	MessageID      int
	UserID         int64
	FirstName      string
	Kind           EventKind
	Text           string
	ReceivedAt     time.Time
}

// ConversationID derives the identity of a chat's exchange.
func ConversationID(chatID int64) string {
	return fmt.Sprintf("telegram:%d", chatID)
}
