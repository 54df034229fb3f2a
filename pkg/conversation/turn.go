package conversation

import (
	"context"

	"github.com/harun/sessionbot/internal/observability"
	"github.com/harun/sessionbot/internal/tracing"
	"github.com/rs/zerolog"
)

// turn carries one step's context and records the actions it issues.
// Transport failures are logged and counted; they never stop the step.
type turn struct {
	m   *Machine
	ctx context.Context
	// out is ctx without its cancellation; transport calls use it so the
	// closing status of an interrupted step still reaches the user.
	out        context.Context
	ev         Event
	sess       *Session
	step       Step
	terminated bool
	logger     zerolog.Logger
}

func (m *Machine) newTurn(ctx context.Context, ev Event, sess *Session) *turn {
	from := StateIdle
	if sess != nil {
		from = sess.state
	}
	return &turn{
		m:    m,
		ctx:  ctx,
		out:  context.WithoutCancel(ctx),
		ev:   ev,
		sess: sess,
		step: Step{
			ConversationID: ev.ConversationID,
			Event:          ev.Kind,
			From:           from,
		},
		logger: tracing.LoggerFromContext(ctx, m.logger),
	}
}

// finish fills in the target state.
func (t *turn) finish() {
	switch {
	case t.terminated:
		t.step.To = StateTerminated
	case t.sess != nil:
		t.step.To = t.sess.state
	default:
		t.step.To = StateIdle
	}
}

func (t *turn) record(a Action, operation string, err error) {
	if err != nil {
		a.Failed = true
		observability.RecordTransportFailure(operation)
		t.logger.Warn().Err(err).Str("operation", operation).Msg("Transport operation failed")
	}
	t.step.Actions = append(t.step.Actions, a)
}

func (t *turn) delete(messageID int) {
	if messageID == 0 {
		return
	}
	err := t.m.transport.DeleteMessage(t.out, t.ev.ChatID, messageID)
	t.record(Action{Kind: ActionDeleteMessage, MessageID: messageID}, "delete", err)
}

// send returns the new message id, 0 if sending failed.
func (t *turn) send(text string) int {
	id, err := t.m.transport.SendText(t.out, t.ev.ChatID, text)
	if err != nil {
		id = 0
	}
	t.record(Action{Kind: ActionSendText, MessageID: id, Text: text}, "send", err)
	return id
}

// status replaces the session's status message, or sends a new one when
// there is none or the edit fails.
func (t *turn) status(text string) {
	if t.sess != nil && t.sess.statusMessageID != 0 {
		err := t.m.transport.EditText(t.out, t.ev.ChatID, t.sess.statusMessageID, text)
		t.record(Action{Kind: ActionEditText, MessageID: t.sess.statusMessageID, Text: text}, "edit", err)
		if err == nil {
			return
		}
	}
	id := t.send(text)
	if t.sess != nil {
		t.sess.statusMessageID = id
	}
}

func (t *turn) document(path, name, caption string) error {
	err := t.m.transport.SendDocument(t.out, t.ev.ChatID, path, name, caption)
	t.record(Action{Kind: ActionSendDocument, Document: name, Caption: caption}, "document", err)
	return err
}
