package secret

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestVaultStageReveal(t *testing.T) {
	v := NewVault()
	h := v.Stage("alice")

	assert.NotEmpty(t, h.String())
	assert.NotContains(t, h.String(), "alice")

	got, err := v.Reveal(h)
	require.NoError(t, err)
	assert.Equal(t, "alice", got)

	// reveal does not use the handle up
	got, err = v.Reveal(h)
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
	assert.Equal(t, 1, v.Len())
}

func TestVaultConsumeOnce(t *testing.T) {
	v := NewVault()
	h := v.Stage("bob")

	got, err := v.Consume(h)
	require.NoError(t, err)
	assert.Equal(t, "bob", got)

	_, err = v.Consume(h)
	assert.ErrorIs(t, err, ErrConsumed)

	_, err = v.Reveal(h)
	assert.ErrorIs(t, err, ErrConsumed)
}

func TestVaultDestroy(t *testing.T) {
	v := NewVault()
	h := v.Stage("carol")

	v.Destroy(h)
	assert.Equal(t, 0, v.Len())

	_, err := v.Reveal(h)
	assert.ErrorIs(t, err, ErrUnknownHandle)
	_, err = v.Consume(h)
	assert.ErrorIs(t, err, ErrUnknownHandle)

	// second destroy is a no-op
	v.Destroy(h)
}

func TestVaultDestroyZeroesBytes(t *testing.T) {
	v := NewVault()
	h := v.Stage("dave")

	v.mu.Lock()
	backing := v.entries[h].value
	v.mu.Unlock()

	v.Destroy(h)
	assert.Equal(t, []byte{0, 0, 0, 0}, backing)
}

func TestVaultHandlesAreIndependent(t *testing.T) {
	v := NewVault()
	h1 := v.Stage("same")
	h2 := v.Stage("same")
	assert.NotEqual(t, h1, h2)

	_, err := v.Consume(h1)
	require.NoError(t, err)

	got, err := v.Reveal(h2)
	require.NoError(t, err)
	assert.Equal(t, "same", got)
}

func TestVaultConcurrentConsume(t *testing.T) {
	v := NewVault()
	h := v.Stage("racy")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := v.Consume(h); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}
