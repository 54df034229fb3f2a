package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := execute(t, "stop", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "Stop a running bot gracefully")
		assert.Contains(t, output, "timeout")
	})

	t.Run("not running", func(t *testing.T) {
		configPath, _ := testHome(t)

		_, err := execute(t, "stop", "--config", configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not running")
	})
}
