package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harun/sessionbot/internal/metrics"
	"github.com/harun/sessionbot/internal/tracing"
	"github.com/harun/sessionbot/pkg/commandqueue"
	"github.com/harun/sessionbot/pkg/conversation"
	"github.com/rs/zerolog"
)

const msgPrivate = "Sorry, this bot is private."

// Dispatcher queues events per conversation. *conversation.Machine implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev conversation.Event) <-chan commandqueue.Result
}

// Sender sends a plain text reply. *telegram.Bot implements it.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
}

// Ingress admits Telegram events into the conversation machine
type Ingress struct {
	dispatcher Dispatcher
	sender     Sender
	allow      map[int64]struct{}
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	wg sync.WaitGroup
}

// NewIngress creates an ingress. An empty allowlist admits every chat.
func NewIngress(dispatcher Dispatcher, sender Sender, allowlist []int64, m *metrics.Metrics, base zerolog.Logger) *Ingress {
	allow := make(map[int64]struct{}, len(allowlist))
	for _, id := range allowlist {
		allow[id] = struct{}{}
	}
	return &Ingress{
		dispatcher: dispatcher,
		sender:     sender,
		allow:      allow,
		metrics:    m,
		logger:     base.With().Str("component", "ingress").Logger(),
	}
}

// Allowed reports whether chatID may use the bot
func (i *Ingress) Allowed(chatID int64) bool {
	if len(i.allow) == 0 {
		return true
	}
	_, ok := i.allow[chatID]
	return ok
}

// OnEvent queues ev behind earlier events of its conversation and returns
// without waiting for it to run.
func (i *Ingress) OnEvent(ctx context.Context, ev conversation.Event) error {
	// Steps outlive the poll loop; the queue cancels them on close.
	ctx = tracing.NewRequestContext(context.WithoutCancel(ctx), ev.ConversationID)
	logger := tracing.LoggerFromContext(ctx, i.logger)

	if !i.Allowed(ev.ChatID) {
		if i.metrics != nil {
			i.metrics.UpdatesRefusedTotal.Inc()
		}
		logger.Warn().Int64("chat_id", ev.ChatID).Int64("user_id", ev.UserID).Msg("Refusing chat outside allowlist")
		if _, err := i.sender.SendText(ctx, ev.ChatID, msgPrivate); err != nil {
			return fmt.Errorf("failed to send refusal: %w", err)
		}
		return nil
	}

	if i.metrics != nil {
		i.metrics.UpdatesReceivedTotal.WithLabelValues(ev.Kind.String()).Inc()
	}

	result := i.dispatcher.Dispatch(ctx, ev)

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.observe(logger, <-result)
	}()
	return nil
}

func (i *Ingress) observe(logger zerolog.Logger, r commandqueue.Result) {
	switch {
	case r.Err == nil:
		if step, ok := r.Value.(conversation.Step); ok && step.Outcome != "" {
			logger.Info().
				Str("from", step.From.String()).
				Str("outcome", step.Outcome).
				Msg("Conversation finished")
		}
	case errors.Is(r.Err, commandqueue.ErrDuplicate):
		if i.metrics != nil {
			i.metrics.UpdatesDuplicateTotal.Inc()
		}
		logger.Debug().Msg("Dropped redelivered update")
	case errors.Is(r.Err, commandqueue.ErrClosed), errors.Is(r.Err, commandqueue.ErrLaneDropped):
		logger.Debug().Err(r.Err).Msg("Event discarded during shutdown")
	default:
		if i.metrics != nil {
			i.metrics.StepErrorsTotal.Inc()
		}
		logger.Error().Err(r.Err).Msg("Conversation step failed")
	}
}

// Wait blocks until every dispatched event has a result
func (i *Ingress) Wait() {
	i.wg.Wait()
}
