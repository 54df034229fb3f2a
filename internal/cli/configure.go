package cli

import (
	"fmt"

	"github.com/harun/sessionbot/internal/config"
	"github.com/spf13/cobra"
)

var (
	configureToken     string
	configureProvider  string
	configureAllowlist []int64
	configureIdle      int
	configureMetrics   bool
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the configuration file",
	Long: `Create or update the configuration file from flags.
Values not given keep their current (or default) setting. The result is
validated before it is saved.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureToken, "bot-token", "", "Telegram bot token")
	configureCmd.Flags().StringVar(&configureProvider, "provider-url", "", "identity provider base URL")
	configureCmd.Flags().Int64SliceVar(&configureAllowlist, "allow", nil, "chat ids allowed to use the bot (repeatable)")
	configureCmd.Flags().IntVar(&configureIdle, "idle-timeout", 0, "minutes before an idle conversation expires (0 disables)")
	configureCmd.Flags().BoolVar(&configureMetrics, "metrics", false, "serve Prometheus metrics")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("bot-token") {
		cfg.Telegram.BotToken = configureToken
	}
	if flags.Changed("provider-url") {
		cfg.Provider.BaseURL = configureProvider
	}
	if flags.Changed("allow") {
		cfg.Telegram.Allowlist = configureAllowlist
	}
	if flags.Changed("idle-timeout") {
		cfg.Flow.IdleTimeoutMinutes = configureIdle
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled = configureMetrics
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, "You can now start the bot with: sessionbot start")

	return nil
}
