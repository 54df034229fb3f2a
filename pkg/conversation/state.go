package conversation

// State is the position of a conversation in the login dialogue.
type State int

const (
	StateIdle State = iota
	StateAwaitingUsername
	StateAwaitingPassword
	StateAwaitingSecondFactor
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingUsername:
		return "awaiting_username"
	case StateAwaitingPassword:
		return "awaiting_password"
	case StateAwaitingSecondFactor:
		return "awaiting_second_factor"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// sensitive reports whether the next text in this state is a secret.
func (s State) sensitive() bool {
	return s == StateAwaitingPassword || s == StateAwaitingSecondFactor
}

// Terminal outcomes, used for metrics and audit records.
const (
	OutcomeDelivered            = "delivered"
	OutcomeFailed               = "failed"
	OutcomeUnsupportedChallenge = "unsupported_challenge"
	OutcomeCancelled            = "cancelled"
	OutcomeExpired              = "expired"
	OutcomeReplaced             = "replaced"
)
