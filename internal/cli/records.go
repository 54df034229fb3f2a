package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/harun/sessionbot/pkg/store"
	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List extracted sessions",
	Long: `List the usernames in the sessions log. Tokens are masked; read the log
file directly if you need them.`,
	Args: cobra.NoArgs,
	RunE: runRecords,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
}

func runRecords(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if _, err := os.Stat(cfg.Storage.SessionsLog); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "No sessions recorded yet.")
		return nil
	}

	log, err := store.Open(cfg.Storage.SessionsLog, cfg.Storage.ArtifactDir)
	if err != nil {
		return err
	}
	records, err := log.Records()
	if err != nil {
		return fmt.Errorf("failed to read sessions log: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No sessions recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tUSERNAME\tSESSION")
	for i, rec := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, rec.Username, maskToken(rec.Token))
	}
	return w.Flush()
}

// maskToken keeps a short prefix so records can be told apart.
func maskToken(token string) string {
	const visible = 4
	if len(token) <= 2*visible {
		return strings.Repeat("*", len(token))
	}
	return token[:visible] + strings.Repeat("*", 8)
}
