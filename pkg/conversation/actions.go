package conversation

import "context"

// Transport delivers outbound instructions to the chat.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendDocument(ctx context.Context, chatID int64, path, name, caption string) error
}

// ActionKind is the kind of an outbound instruction.
type ActionKind int

const (
	ActionDeleteMessage ActionKind = iota
	ActionSendText
	ActionEditText
	ActionSendDocument
)

func (k ActionKind) String() string {
	switch k {
	case ActionDeleteMessage:
		return "delete_message"
	case ActionSendText:
		return "send_text"
	case ActionEditText:
		return "edit_text"
	case ActionSendDocument:
		return "send_document"
	default:
		return "unknown"
	}
}

// Action is one outbound instruction issued during a step.
type Action struct {
	Kind      ActionKind
	MessageID int
	Text      string
	Document  string
	Caption   string
	Failed    bool
}

// Step describes one handled event.
type Step struct {
	ConversationID string
	Event          EventKind
	From           State
	To             State
	Outcome        string // set when the step ended the conversation
	Actions        []Action
}
