package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MenuCommands lists the commands shown in the Telegram command menu
func MenuCommands(entry, cancel string) []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: "start", Description: "Start the bot"},
		{Command: "help", Description: "Show help"},
		{Command: entry, Description: "Extract a session ID"},
		{Command: cancel, Description: "Cancel the current operation"},
	}
}

// SetCommands sets the bot's command list in Telegram
func (b *Bot) SetCommands(commands []tgbotapi.BotCommand) error {
	cfg := tgbotapi.NewSetMyCommands(commands...)
	resp, err := b.api.Request(cfg)
	if err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}
	if resp != nil && !resp.Ok {
		return fmt.Errorf("failed to set commands: %s", resp.Description)
	}

	b.logger.Info().Int("count", len(commands)).Msg("Bot commands updated")
	return nil
}
