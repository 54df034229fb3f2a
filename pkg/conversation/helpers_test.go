package conversation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harun/sessionbot/pkg/provider"
	"github.com/harun/sessionbot/pkg/secret"
	"github.com/harun/sessionbot/pkg/store"
	"github.com/stretchr/testify/require"
)

type sentDocument struct {
	path    string
	name    string
	caption string
	content string
}

// fakeTransport records every outbound call. Like the Telegram bot it
// refuses calls on a cancelled context.
type fakeTransport struct {
	mu      sync.Mutex
	nextID  int
	sent    []string
	edits   []string
	deletes []int
	docs    []sentDocument
	order   []string

	failDelete   bool
	failSend     bool
	failEdit     bool
	failDocument bool
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "send")
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if f.failSend {
		return 0, errors.New("send failed")
	}
	f.nextID++
	f.sent = append(f.sent, text)
	return 1000 + f.nextID, nil
}

func (f *fakeTransport) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "edit")
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failEdit {
		return errors.New("edit failed")
	}
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "delete")
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failDelete {
		return errors.New("message can't be deleted")
	}
	f.deletes = append(f.deletes, messageID)
	return nil
}

func (f *fakeTransport) SendDocument(ctx context.Context, chatID int64, path, name, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "document")
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if f.failDocument {
		return errors.New("upload failed")
	}
	f.docs = append(f.docs, sentDocument{path: path, name: name, caption: caption, content: string(data)})
	return nil
}

// texts returns everything the user could have seen.
func (f *fakeTransport) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string{}, f.sent...)
	out = append(out, f.edits...)
	for _, d := range f.docs {
		out = append(out, d.caption, d.content)
	}
	return out
}

func (f *fakeTransport) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakeTransport) documents() []sentDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentDocument{}, f.docs...)
}

// fakeProvider hands out fakeClients. A client accepts TwoFactorLogin only
// after its own Login asked for a second factor.
type fakeProvider struct {
	mu        sync.Mutex
	clients   []*fakeClient
	login     func(username, password string) (string, error)
	twoFactor func(code string) (string, error)
	openErr   error
	gate      chan struct{} // when set, Login waits on it
	entered   chan struct{} // when set, Login signals here first
	hang      bool          // when set, Login returns only once ctx is cancelled
}

type fakeClient struct {
	p              *fakeProvider
	mu             sync.Mutex
	loginCalls     int
	twoFactorCalls int
	pending        bool
	closed         bool
}

func (p *fakeProvider) open(ctx context.Context) (provider.Authenticator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return nil, p.openErr
	}
	c := &fakeClient{p: p}
	p.clients = append(p.clients, c)
	return c, nil
}

func (p *fakeProvider) gateway() *provider.Gateway {
	return provider.NewGateway(p.open)
}

func (p *fakeProvider) opened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func (p *fakeProvider) client(i int) *fakeClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clients[i]
}

// calls sums provider calls over all clients.
func (p *fakeProvider) calls() int {
	p.mu.Lock()
	clients := append([]*fakeClient{}, p.clients...)
	p.mu.Unlock()

	n := 0
	for _, c := range clients {
		c.mu.Lock()
		n += c.loginCalls + c.twoFactorCalls
		c.mu.Unlock()
	}
	return n
}

func (c *fakeClient) Login(ctx context.Context, username, password string) (string, error) {
	if c.p.entered != nil {
		c.p.entered <- struct{}{}
	}
	if c.p.gate != nil {
		<-c.p.gate
	}
	if c.p.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loginCalls++
	token, err := c.p.login(username, password)
	c.pending = errors.Is(err, provider.ErrSecondFactorRequired)
	return token, err
}

func (c *fakeClient) TwoFactorLogin(ctx context.Context, code string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.twoFactorCalls++
	if !c.pending {
		return "", provider.ErrNoPendingSecondFactor
	}
	c.pending = false
	return c.p.twoFactor(code)
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// failingStore wraps a Log and fails appends.
type failingStore struct {
	*store.Log
}

func (failingStore) Append(ctx context.Context, rec store.Record) error {
	return errors.New("disk full")
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	t         *testing.T
	machine   *Machine
	transport *fakeTransport
	provider  *fakeProvider
	log       *store.Log
	vault     *secret.Vault
	clock     *fakeClock
	dir       string
	chatID    int64
	nextMsg   int
}

type harnessOption func(*Config)

func newHarness(t *testing.T, p *fakeProvider, opts ...harnessOption) *harness {
	t.Helper()

	dir := t.TempDir()
	l, err := store.Open(filepath.Join(dir, "sessions.txt"), filepath.Join(dir, "artifacts"))
	require.NoError(t, err)

	h := &harness{
		t:         t,
		transport: &fakeTransport{},
		provider:  p,
		log:       l,
		vault:     secret.NewVault(),
		clock:     &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		dir:       dir,
		chatID:    42,
	}

	cfg := Config{
		Transport: h.transport,
		Gateway:   p.gateway(),
		Store:     l,
		Vault:     h.vault,
		Now:       h.clock.Now,
		WarnAfter: -1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h.machine, err = New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { h.machine.Close() })
	return h
}

func (h *harness) conversationID() string {
	return ConversationID(h.chatID)
}

func (h *harness) event(kind EventKind, text string) Event {
	h.nextMsg++
	return Event{
		ConversationID: h.conversationID(),
		ChatID:         h.chatID,
		MessageID:      h.nextMsg,
		UserID:         7,
		FirstName:      "Ada",
		Kind:           kind,
		Text:           text,
		ReceivedAt:     h.clock.Now(),
	}
}

func (h *harness) handle(kind EventKind, text string) Step {
	h.t.Helper()
	step, err := h.machine.Handle(context.Background(), h.event(kind, text))
	require.NoError(h.t, err)
	return step
}

func (h *harness) sessionsLog() string {
	data, err := os.ReadFile(h.log.Path())
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(h.t, err)
	return string(data)
}

func (h *harness) artifactEntries() []string {
	entries, err := os.ReadDir(filepath.Join(h.dir, "artifacts"))
	require.NoError(h.t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func requireNoSecret(t *testing.T, secretValue string, haystacks ...string) {
	t.Helper()
	for _, s := range haystacks {
		require.False(t, strings.Contains(s, secretValue), fmt.Sprintf("secret leaked into %q", s))
	}
}

func successFor(expectedPassword, token string) func(string, string) (string, error) {
	return func(username, password string) (string, error) {
		if password != expectedPassword {
			return "", &provider.Error{Code: "bad_password", Message: "the password " + password + " is incorrect"}
		}
		return token, nil
	}
}
