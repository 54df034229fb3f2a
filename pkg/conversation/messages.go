package conversation

import "fmt"

const (
	msgLoginStatus     = "Attempting to login... Please wait."
	msgVerifyingStatus = "Verifying 2FA code..."
	msgTwoFactorPrompt = "Two-factor authentication is required.\n" +
		"Please enter the verification code from your authentication app:"
	msgUsernameEmpty     = "The username cannot be empty. Please enter your username:"
	msgUsernameMultiline = "The username must be a single line. Please enter your username:"
	msgPasswordPrompt    = "Now, please enter your password:\n\n" +
		"⚠️ Your password will be deleted from the chat immediately for security."
)

// messages renders user-facing texts with the configured command names.
type messages struct {
	entry  string
	cancel string
}

func (m messages) welcome(firstName string) string {
	if firstName == "" {
		firstName = "there"
	}
	return fmt.Sprintf("Hello %s! 👋\n\n"+
		"Welcome to the Session Extractor Bot!\n\n"+
		"This bot will help you extract your session ID securely.\n"+
		"Your credentials are not stored and are only used for the extraction process.\n\n"+
		"To get started, use the /%s command.", firstName, m.entry)
}

func (m messages) help() string {
	return fmt.Sprintf("🔹 Commands:\n\n"+
		"/start - Start the bot\n"+
		"/help - Show this help message\n"+
		"/%[1]s - Extract a session ID\n"+
		"/%[2]s - Cancel the current operation\n\n"+
		"How to use:\n"+
		"1. Use /%[1]s to start the process\n"+
		"2. Enter your username\n"+
		"3. Enter your password (it is deleted right away)\n"+
		"4. If 2FA is enabled, enter the verification code\n"+
		"5. Receive your session ID\n\n"+
		"Note: Your login credentials are not stored.", m.entry, m.cancel)
}

func (m messages) usernamePrompt() string {
	return fmt.Sprintf("Let's extract your session ID.\n\n"+
		"First, please enter your username:\n\n"+
		"Send /%s at any time to stop.", m.cancel)
}

func (m messages) retryHint() string {
	return fmt.Sprintf("Please try again with /%s", m.entry)
}

func (m messages) challenge() string {
	return "⚠️ Account verification challenge required. " +
		"This bot currently supports only username/password and 2FA login methods.\n\n" +
		"Please complete the challenge in the provider's official app or website, then " +
		fmt.Sprintf("try again with /%s", m.entry)
}

func (m messages) loginFailed(detail string) string {
	return fmt.Sprintf("❌ Login failed: %s\n\n%s", detail, m.retryHint())
}

func (m messages) twoFactorFailed(detail string) string {
	return fmt.Sprintf("❌ Two-factor verification failed: %s\n\n%s", detail, m.retryHint())
}

func (m messages) success(username, token string, saved bool) string {
	text := fmt.Sprintf("✅ Session extracted successfully!\n\nUsername: %s\nSession ID: %s", username, token)
	if saved {
		text += "\n\nThis session has also been saved to the sessions log."
	}
	return text
}

func (m messages) caption(username string) string {
	return "Session ID for " + username
}

func (m messages) cancelled() string {
	return fmt.Sprintf("Operation cancelled. Your information has been discarded.\n\nUse /%s to start again.", m.entry)
}

func (m messages) nothingToCancel() string {
	return fmt.Sprintf("There is no operation in progress.\n\nUse /%s to start.", m.entry)
}

func (m messages) unknownCommand() string {
	return fmt.Sprintf("Unknown command. Send /%s to stop the current operation.", m.cancel)
}

func (m messages) expired() string {
	return fmt.Sprintf("⌛ The operation expired due to inactivity. Your information has been discarded.\n\nUse /%s to start again.", m.entry)
}
