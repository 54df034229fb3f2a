package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/sessionbot/pkg/conversation"
	"github.com/rs/zerolog"
)

// Classifier maps a command name to an event kind. *conversation.Machine implements it.
type Classifier interface {
	CommandKind(command string) conversation.EventKind
}

// Handler turns Telegram updates into conversation events
type Handler struct {
	classify Classifier
	logger   zerolog.Logger

	// Callback for processing events
	onEvent func(context.Context, conversation.Event) error
}

// NewHandler creates a new update handler
func NewHandler(bot *Bot, classify Classifier) *Handler {
	return &Handler{
		classify: classify,
		logger:   bot.logger.With().Str("module", "handler").Logger(),
	}
}

// SetOnEvent sets the event callback
func (h *Handler) SetOnEvent(callback func(context.Context, conversation.Event) error) {
	h.onEvent = callback
}

// HandleUpdate converts update and passes it on. Updates without a text
// message are ignored.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	ev, ok := EventFromUpdate(update, h.classify)
	if !ok {
		h.logger.Debug().Int("update_id", update.UpdateID).Msg("Ignoring update without text")
		return nil
	}

	h.logger.Debug().
		Int64("chat_id", ev.ChatID).
		Int64("user_id", ev.UserID).
		Str("kind", ev.Kind.String()).
		Msg("Message received")

	if h.onEvent != nil {
		return h.onEvent(ctx, ev)
	}
	return nil
}

// EventFromUpdate converts a message update into a conversation event
func EventFromUpdate(update tgbotapi.Update, classify Classifier) (conversation.Event, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return conversation.Event{}, false
	}

	ev := conversation.Event{
		ConversationID: conversation.ConversationID(msg.Chat.ID),
		UpdateID:       update.UpdateID,
		ChatID:         msg.Chat.ID,
		MessageID:      msg.MessageID,
		Kind:           conversation.EventText,
		Text:           msg.Text,
		ReceivedAt:     msg.Time(),
	}
	if msg.From != nil {
		ev.UserID = msg.From.ID
		ev.FirstName = msg.From.FirstName
	}
	if msg.IsCommand() {
		ev.Kind = classify.CommandKind(msg.Command())
	}
	return ev, true
}
