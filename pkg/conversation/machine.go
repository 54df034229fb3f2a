package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harun/sessionbot/internal/observability"
	"github.com/harun/sessionbot/internal/tracing"
	"github.com/harun/sessionbot/pkg/commandqueue"
	"github.com/harun/sessionbot/pkg/provider"
	"github.com/harun/sessionbot/pkg/secret"
	"github.com/harun/sessionbot/pkg/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const defaultWarnAfter = 5 * time.Second

// Gateway opens provider client handles. *provider.Gateway satisfies it.
type Gateway interface {
	Open(ctx context.Context) (*provider.Session, error)
}

// Persistence stores successful extractions. *store.Log satisfies it.
type Persistence interface {
	Append(ctx context.Context, rec store.Record) error
	MaterializeArtifact(ctx context.Context, key, username, token string) (*store.Artifact, error)
}

// Config wires a Machine. Transport, Gateway and Store are required.
type Config struct {
	EntryCommand  string
	CancelCommand string

	Transport Transport
	Gateway   Gateway
	Store     Persistence

	// Optional. A Queue passed in is not closed by Machine.Close.
	Vault *secret.Vault
	Queue *commandqueue.CommandQueue
	Now   func() time.Time

	// WarnAfter logs events that wait longer than this behind a running step.
	WarnAfter time.Duration
}

// Machine owns every conversation and runs their transitions.
type Machine struct {
	transport Transport
	gateway   Gateway
	store     Persistence
	vault     *secret.Vault
	queue     *commandqueue.CommandQueue
	ownsQueue bool
	now       func() time.Time

	entry       string
	cancel      string
	msgs        messages
	warnAfterMs int

	sessions  *registry
	logger    zerolog.Logger
	closeOnce sync.Once
}

// New creates a Machine.
func New(cfg Config) (*Machine, error) {
	if cfg.Transport == nil {
		return nil, errors.New("conversation: transport is required")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("conversation: gateway is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("conversation: store is required")
	}

	observability.EnsureRegistered()

	m := &Machine{
		transport: cfg.Transport,
		gateway:   cfg.Gateway,
		store:     cfg.Store,
		vault:     cfg.Vault,
		queue:     cfg.Queue,
		now:       cfg.Now,
		entry:     strings.TrimPrefix(cfg.EntryCommand, "/"),
		cancel:    strings.TrimPrefix(cfg.CancelCommand, "/"),
		sessions:  newRegistry(),
		logger:    log.With().Str("component", "conversation").Logger(),
	}
	if m.entry == "" {
		m.entry = "extract"
	}
	if m.cancel == "" {
		m.cancel = "cancel"
	}
	if m.entry == m.cancel {
		return nil, fmt.Errorf("conversation: entry and cancel command are both /%s", m.entry)
	}
	m.msgs = messages{entry: m.entry, cancel: m.cancel}

	if m.vault == nil {
		m.vault = secret.NewVault()
	}
	if m.queue == nil {
		m.queue = commandqueue.New(commandqueue.Options{})
		m.ownsQueue = true
	}
	if m.now == nil {
		m.now = time.Now
	}

	warnAfter := cfg.WarnAfter
	if warnAfter == 0 {
		warnAfter = defaultWarnAfter
	}
	if warnAfter > 0 {
		m.warnAfterMs = int(warnAfter / time.Millisecond)
	}

	return m, nil
}

// CommandKind classifies a bot command name given without the leading slash.
func (m *Machine) CommandKind(command string) EventKind {
	switch strings.ToLower(command) {
	case m.entry:
		return EventEntry
	case m.cancel:
		return EventCancel
	case "start":
		return EventStart
	case "help":
		return EventHelp
	default:
		return EventUnknownCommand
	}
}

// Handle runs ev in its conversation's lane and waits for the resulting Step.
func (m *Machine) Handle(ctx context.Context, ev Event) (Step, error) {
	v, err := m.queue.EnqueueWithContext(ctx, ev.ConversationID, m.task(ev), m.taskOptions(ev))
	if err != nil {
		return Step{}, err
	}
	step, _ := v.(Step)
	return step, nil
}

// Dispatch queues ev behind earlier events of the same conversation and returns
// immediately. The channel yields the Step once it ran.
func (m *Machine) Dispatch(ctx context.Context, ev Event) <-chan commandqueue.Result {
	return m.queue.Submit(ctx, ev.ConversationID, m.task(ev), m.taskOptions(ev))
}

func (m *Machine) task(ev Event) commandqueue.Task {
	return func(ctx context.Context) (interface{}, error) {
		return m.step(ctx, ev), nil
	}
}

func (m *Machine) taskOptions(ev Event) *commandqueue.TaskOptions {
	opts := &commandqueue.TaskOptions{WarnAfterMs: m.warnAfterMs}
	if ev.UpdateID != 0 {
		opts.DedupKey = "update:" + strconv.Itoa(ev.UpdateID)
	}
	return opts
}

// State returns the current state of a conversation.
func (m *Machine) State(conversationID string) State {
	return m.sessions.stateOf(conversationID)
}

// ActiveCount returns the number of live conversations.
func (m *Machine) ActiveCount() int {
	return m.sessions.len()
}

// step is the transition function. It must only run inside the conversation's lane.
func (m *Machine) step(ctx context.Context, ev Event) Step {
	ctx = tracing.WithConversationKey(ctx, ev.ConversationID)
	ctx, span := tracing.StartSpan(ctx, "sessionbot.conversation", "conversation.step",
		attribute.String("conversation.event", ev.Kind.String()),
	)
	defer span.End()

	sess := m.sessions.lookup(ev.ConversationID)
	t := m.newTurn(ctx, ev, sess)
	if sess != nil {
		m.sessions.touch(sess, m.now())
	}

	switch ev.Kind {
	case EventStart:
		t.send(m.msgs.welcome(ev.FirstName))
	case EventHelp:
		t.send(m.msgs.help())
	case EventEntry:
		m.begin(t)
	case EventCancel:
		m.cancelFlow(t)
	case EventUnknownCommand:
		m.unknownCommand(t)
	case EventText:
		m.text(t)
	}

	t.finish()
	span.SetAttributes(
		attribute.String("conversation.from", t.step.From.String()),
		attribute.String("conversation.to", t.step.To.String()),
	)
	t.logger.Debug().
		Str("event", ev.Kind.String()).
		Str("from", t.step.From.String()).
		Str("to", t.step.To.String()).
		Str("outcome", t.step.Outcome).
		Int("actions", len(t.step.Actions)).
		Msg("Conversation step")

	return t.step
}

func (m *Machine) begin(t *turn) {
	sess, prior := m.sessions.create(t.ev, m.now())
	if prior != nil {
		m.finish(t.ctx, prior, OutcomeReplaced)
	}
	t.sess = sess
	m.updateActive()

	t.send(m.msgs.usernamePrompt())
}

func (m *Machine) cancelFlow(t *turn) {
	if t.sess == nil {
		t.send(m.msgs.nothingToCancel())
		return
	}
	m.terminate(t, OutcomeCancelled)
	t.send(m.msgs.cancelled())
}

func (m *Machine) unknownCommand(t *turn) {
	if t.sess == nil {
		t.logger.Debug().Msg("Ignoring unknown command outside a conversation")
		return
	}
	// The "command" may be a password that starts with a slash.
	if t.sess.state.sensitive() {
		t.delete(t.ev.MessageID)
	}
	t.send(m.msgs.unknownCommand())
}

func (m *Machine) text(t *turn) {
	if t.sess == nil {
		t.logger.Debug().Msg("Ignoring text outside a conversation")
		return
	}

	switch t.sess.state {
	case StateAwaitingUsername:
		m.captureUsername(t)
	case StateAwaitingPassword:
		m.attemptLogin(t)
	case StateAwaitingSecondFactor:
		m.verifySecondFactor(t)
	}
}

func (m *Machine) captureUsername(t *turn) {
	t.delete(t.ev.MessageID)

	username := strings.TrimSpace(t.ev.Text)
	if username == "" {
		t.send(msgUsernameEmpty)
		return
	}
	if strings.ContainsAny(username, "\r\n") {
		t.send(msgUsernameMultiline)
		return
	}

	client, err := m.gateway.Open(t.ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to open provider client")
		m.terminate(t, OutcomeFailed)
		t.send(m.msgs.loginFailed("the identity provider is unavailable"))
		return
	}

	t.sess.username = m.vault.Stage(username)
	t.sess.client = client
	m.sessions.setState(t.sess, StateAwaitingPassword)
	t.logger.Info().Str("username", username).Msg("Username captured")

	t.send(msgPasswordPrompt)
}

// attemptLogin receives the password. It is used for the provider call only
// and is gone when this returns.
func (m *Machine) attemptLogin(t *turn) {
	t.delete(t.ev.MessageID)
	t.sess.statusMessageID = t.send(msgLoginStatus)

	username, err := m.vault.Reveal(t.sess.username)
	if err != nil {
		m.lost(t, err)
		return
	}

	res := t.sess.client.Login(t.ctx, username, t.ev.Text)

	switch res.Outcome {
	case provider.OutcomeSuccess:
		m.deliver(t, res.Token)
	case provider.OutcomeSecondFactorRequired:
		m.sessions.setState(t.sess, StateAwaitingSecondFactor)
		t.status(msgTwoFactorPrompt)
	case provider.OutcomeUnsupportedChallenge:
		t.status(m.msgs.challenge())
		m.terminate(t, OutcomeUnsupportedChallenge)
	default:
		t.logger.Warn().Str("detail", res.Detail()).Msg("Login failed")
		t.status(m.msgs.loginFailed(res.Detail()))
		m.terminate(t, OutcomeFailed)
	}
}

func (m *Machine) verifySecondFactor(t *turn) {
	t.delete(t.ev.MessageID)
	t.sess.statusMessageID = t.send(msgVerifyingStatus)

	res := t.sess.client.CompleteSecondFactor(t.ctx, strings.TrimSpace(t.ev.Text))
	if res.Outcome == provider.OutcomeSuccess {
		m.deliver(t, res.Token)
		return
	}

	t.logger.Warn().Str("detail", res.Detail()).Msg("Second factor failed")
	t.status(m.msgs.twoFactorFailed(res.Detail()))
	m.terminate(t, OutcomeFailed)
}

// deliver persists the token, sends it and removes the transient artifact on every path.
func (m *Machine) deliver(t *turn, token string) {
	username, err := m.vault.Consume(t.sess.username)
	if err != nil {
		m.lost(t, err)
		return
	}

	saved := true
	if err := m.store.Append(t.ctx, store.Record{Username: username, Token: token, Timestamp: m.now()}); err != nil {
		saved = false
		t.logger.Error().Err(err).Str("username", username).Msg("Failed to append session record")
	}

	artifact, err := m.store.MaterializeArtifact(t.ctx, t.sess.id, username, token)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to create session artifact")
	} else {
		defer func() {
			if err := artifact.Remove(); err != nil {
				t.logger.Error().Err(err).Msg("Failed to remove session artifact")
			}
		}()
	}

	t.send(m.msgs.success(username, token, saved))

	if artifact != nil {
		err := t.document(artifact.Path(), artifact.Name(), m.msgs.caption(username))
		observability.RecordArtifactDelivery(err == nil)
	} else {
		observability.RecordArtifactDelivery(false)
	}

	t.logger.Info().Str("username", username).Bool("saved", saved).Msg("Session delivered")
	m.terminate(t, OutcomeDelivered)
}

// lost handles a staged username that vanished, which only happens if the
// session was torn down underneath the step.
func (m *Machine) lost(t *turn, err error) {
	t.logger.Error().Err(err).Msg("Staged username unavailable")
	t.status(m.msgs.loginFailed("the session state was lost"))
	m.terminate(t, OutcomeFailed)
}

func (m *Machine) terminate(t *turn, outcome string) {
	m.finish(t.ctx, t.sess, outcome)
	t.terminated = true
	t.step.Outcome = outcome
}

// finish ends sess: it leaves the registry, its provider handle is closed and
// its staged username destroyed.
func (m *Machine) finish(ctx context.Context, sess *Session, outcome string) {
	m.sessions.setState(sess, StateTerminated)
	m.sessions.destroy(sess)
	m.release(sess)

	observability.RecordConversationOutcome(outcome)
	observability.RecordConversationAudit(ctx, strconv.FormatInt(sess.userID, 10), "extract", outcome, map[string]string{
		"conversation": sess.conversationID,
		"session":      sess.id,
	})
	m.updateActive()
}

func (m *Machine) release(sess *Session) {
	if sess.client != nil {
		if err := sess.client.Close(); err != nil {
			m.logger.Warn().Err(err).Str("conversation_key", sess.conversationID).Msg("Failed to close provider client")
		}
		sess.client = nil
	}
	if sess.username != "" {
		m.vault.Destroy(sess.username)
		sess.username = ""
	}
}

func (m *Machine) updateActive() {
	observability.SetActiveConversations(m.sessions.len())
}

// ExpireIdle terminates conversations idle for longer than maxIdle. Each
// expiry runs in the conversation's own lane. Returns how many expired.
func (m *Machine) ExpireIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	if maxIdle <= 0 {
		return 0, nil
	}

	cutoff := m.now().Add(-maxIdle)
	ids := m.sessions.idleSince(cutoff)

	pending := make([]<-chan commandqueue.Result, 0, len(ids))
	for _, id := range ids {
		id := id
		pending = append(pending, m.queue.Submit(ctx, id, func(ctx context.Context) (interface{}, error) {
			sess := m.sessions.lookup(id)
			if sess == nil || !m.sessions.idleFor(sess, cutoff) {
				return false, nil
			}
			t := m.newTurn(tracing.WithConversationKey(ctx, id), Event{ConversationID: id, ChatID: sess.chatID}, sess)
			m.terminate(t, OutcomeExpired)
			t.send(m.msgs.expired())
			return true, nil
		}, nil))
	}

	expired := 0
	for _, ch := range pending {
		select {
		case r := <-ch:
			if ok, _ := r.Value.(bool); ok && r.Err == nil {
				expired++
			}
		case <-ctx.Done():
			return expired, ctx.Err()
		}
	}

	if expired > 0 {
		m.logger.Info().Int("expired", expired).Dur("max_idle", maxIdle).Msg("Expired idle conversations")
	}
	return expired, nil
}

// Close stops the owned queue and releases every live session without
// notifying users.
func (m *Machine) Close() error {
	m.closeOnce.Do(func() {
		if m.ownsQueue {
			m.queue.Close()
		}
		for _, sess := range m.sessions.drain() {
			m.release(sess)
		}
		m.updateActive()
	})
	return nil
}
