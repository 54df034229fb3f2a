package secret

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrUnknownHandle is returned for handles that were never staged or were destroyed.
	ErrUnknownHandle = errors.New("secret: unknown handle")

	// ErrConsumed is returned when a handle is used after Consume.
	ErrConsumed = errors.New("secret: already consumed")
)

// Handle identifies a staged secret.
type Handle string

// String returns the handle id. Handles carry no secret material.
func (h Handle) String() string {
	return string(h)
}

type entry struct {
	value    []byte
	consumed bool
}

// Vault stores staged secrets in memory.
type Vault struct {
	mu      sync.Mutex
	entries map[Handle]*entry
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{entries: make(map[Handle]*entry)}
}

// Stage copies value into the vault and returns its handle.
func (v *Vault) Stage(value string) Handle {
	h := Handle(uuid.NewString())

	v.mu.Lock()
	v.entries[h] = &entry{value: []byte(value)}
	v.mu.Unlock()

	return h
}

// Reveal returns the value without consuming it.
func (v *Vault) Reveal(h Handle) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[h]
	if !ok {
		return "", ErrUnknownHandle
	}
	if e.consumed {
		return "", ErrConsumed
	}
	return string(e.value), nil
}

// Consume returns the value and marks the handle used. A second call fails
// with ErrConsumed. The entry is kept (zeroed) until Destroy so that late
// callers get ErrConsumed rather than ErrUnknownHandle.
func (v *Vault) Consume(h Handle) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[h]
	if !ok {
		return "", ErrUnknownHandle
	}
	if e.consumed {
		return "", ErrConsumed
	}

	out := string(e.value)
	wipe(e.value)
	e.value = nil
	e.consumed = true
	return out, nil
}

// Destroy zeroes and forgets the value. Destroying an unknown handle is a no-op.
func (v *Vault) Destroy(h Handle) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if e, ok := v.entries[h]; ok {
		wipe(e.value)
		delete(v.entries, h)
	}
}

// Len returns the number of entries held, consumed ones included.
func (v *Vault) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
