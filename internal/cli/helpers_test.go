package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args. --help and --version stick on a
// command once parsed, so they are cleared first.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetHelp := func(c *cobra.Command) {
		for _, name := range []string{"help", "version"} {
			if f := c.Flags().Lookup(name); f != nil {
				_ = f.Value.Set("false")
				f.Changed = false
			}
		}
	}
	resetHelp(rootCmd)
	for _, c := range rootCmd.Commands() {
		resetHelp(c)
	}

	output := &bytes.Buffer{}
	rootCmd.SetOut(output)
	rootCmd.SetErr(output)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return output.String(), err
}

// testHome points HOME at a temp dir and returns the config path and data dir under it.
func testHome(t *testing.T) (string, string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dataDir := filepath.Join(home, ".sessionbot")
	return filepath.Join(dataDir, "sessionbot.json"), dataDir
}

func writeOwnPID(t *testing.T, dataDir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dataDir, 0700))
	path := filepath.Join(dataDir, "sessionbot.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600))
}
