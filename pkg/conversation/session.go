package conversation

import (
	"sync"
	"time"

	"github.com/harun/sessionbot/pkg/provider"
	"github.com/harun/sessionbot/pkg/secret"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Session is the state of one conversation. It never holds the password.
type Session struct {
	id             string // unique per session, names transient files
	conversationID string
	chatID         int64
	userID         int64

	state           State
	username        secret.Handle
	client          *provider.Session
	statusMessageID int

	createdAt    time.Time
	lastActivity time.Time
}

// registry maps conversation identities to their current Session.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*Session)}
}

// create installs a fresh session for ev and returns the one it replaced, if any.
func (r *registry) create(ev Event, now time.Time) (*Session, *Session) {
	id, err := gonanoid.New()
	if err != nil {
		// crypto/rand failure; fall back to a time based id
		id = now.Format("20060102T150405.000000000")
	}

	s := &Session{
		id:             id,
		conversationID: ev.ConversationID,
		chatID:         ev.ChatID,
		userID:         ev.UserID,
		state:          StateAwaitingUsername,
		createdAt:      now,
		lastActivity:   now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	prior := r.sessions[ev.ConversationID]
	r.sessions[ev.ConversationID] = s
	return s, prior
}

func (r *registry) lookup(conversationID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[conversationID]
}

// destroy removes s if it is still the current session for its identity.
func (r *registry) destroy(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.conversationID] == s {
		delete(r.sessions, s.conversationID)
	}
}

// stateOf returns the state of the current session, Idle when there is none.
func (r *registry) stateOf(conversationID string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[conversationID]; ok {
		return s.state
	}
	return StateIdle
}

// setState and touch guard the fields read concurrently by State and the janitor.
func (r *registry) setState(s *Session, state State) {
	r.mu.Lock()
	s.state = state
	r.mu.Unlock()
}

func (r *registry) touch(s *Session, now time.Time) {
	r.mu.Lock()
	s.lastActivity = now
	r.mu.Unlock()
}

func (r *registry) idleFor(s *Session, cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[s.conversationID] == s && s.lastActivity.Before(cutoff)
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// idleSince lists identities whose last activity is before cutoff.
func (r *registry) idleSince(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, s := range r.sessions {
		if s.lastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// drain removes and returns every session.
func (r *registry) drain() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	return all
}
