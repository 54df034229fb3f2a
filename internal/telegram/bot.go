package telegram

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/sessionbot/internal/config"
	"github.com/harun/sessionbot/internal/logger"
	"github.com/harun/sessionbot/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "sessionbot.telegram"

// API is the part of *tgbotapi.BotAPI the bot uses
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// UpdateHandler receives every polled update
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

// Bot represents a Telegram bot instance. It also implements the
// conversation transport.
type Bot struct {
	api    API
	self   tgbotapi.User
	config *config.TelegramConfig
	logger zerolog.Logger

	handler UpdateHandler

	// State
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a new Telegram bot instance
func New(cfg *config.TelegramConfig, log *logger.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram config is required")
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := NewWithAPI(api, api.Self, cfg, log.GetZerolog())

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

// NewWithAPI creates a bot on top of an existing API client
func NewWithAPI(api API, self tgbotapi.User, cfg *config.TelegramConfig, base zerolog.Logger) *Bot {
	if cfg == nil {
		cfg = &config.TelegramConfig{}
	}
	return &Bot{
		api:    api,
		self:   self,
		config: cfg,
		logger: base.With().Str("component", "telegram").Logger(),
	}
}

// SetHandler sets the update handler. It must be called before Start.
func (b *Bot) SetHandler(handler UpdateHandler) {
	b.handler = handler
}

// Start begins long polling. Updates are handed to the handler one at a
// time, in the order Telegram delivers them.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.config.PollTimeout
	updates := b.api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true

	go b.processUpdates(ctx, updates, b.done)

	b.logger.Info().Int("poll_timeout", u.Timeout).Msg("Telegram bot started")

	return nil
}

// Stop stops polling and waits for the update loop to exit
func (b *Bot) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot is not running")
	}
	b.running = false
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	b.logger.Info().Msg("Stopping Telegram bot")

	b.api.StopReceivingUpdates()
	cancel()
	<-done

	b.logger.Info().Msg("Telegram bot stopped")

	return nil
}

func (b *Bot) processUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if b.handler == nil {
				continue
			}
			if err := b.handler.HandleUpdate(ctx, update); err != nil {
				b.logger.Error().
					Err(err).
					Int("update_id", update.UpdateID).
					Msg("Failed to handle update")
			}
		}
	}
}

// SendText sends a plain text message and returns its id. No parse mode is
// set, so usernames and tokens are shown verbatim.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "telegram.send_message", attribute.Int64("chat.id", chatID))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		tracing.RecordError(span, err)
		return 0, fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Int("message_id", sent.MessageID).
		Msg("Message sent")

	return sent.MessageID, nil
}

// EditText replaces the text of a message the bot sent earlier
func (b *Bot) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "telegram.edit_message", attribute.Int64("chat.id", chatID))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to edit message %d: %w", messageID, err)
	}
	return nil
}

// DeleteMessage removes a message from the chat
func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "telegram.delete_message", attribute.Int64("chat.id", chatID))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	resp, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to delete message %d: %w", messageID, err)
	}
	if resp != nil && !resp.Ok {
		err := fmt.Errorf("failed to delete message %d: %s", messageID, resp.Description)
		tracing.RecordError(span, err)
		return err
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Int("message_id", messageID).
		Msg("Message deleted")

	return nil
}

// Self returns the bot's own user
func (b *Bot) Self() tgbotapi.User {
	return b.self
}

// IsRunning returns whether the bot is polling
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// ValidateToken authenticates token against Telegram and returns the bot's username
func ValidateToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return "", fmt.Errorf("invalid bot token: %w", err)
	}

	if api.Self.UserName == "" {
		return "", fmt.Errorf("failed to get bot info")
	}

	return api.Self.UserName, nil
}
