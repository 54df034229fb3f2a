package provider

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const maxDetailRunes = 200

// Outcome is the kind of a login result.
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
	OutcomeSecondFactorRequired
	OutcomeUnsupportedChallenge
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSecondFactorRequired:
		return "second_factor_required"
	case OutcomeUnsupportedChallenge:
		return "unsupported_challenge"
	default:
		return "failure"
	}
}

// Result is the tagged outcome of Login or CompleteSecondFactor.
// Token is set only for OutcomeSuccess.
type Result struct {
	Outcome Outcome
	Token   string
	Err     error
}

// Detail returns a short single-line description of the failure, safe to show a user.
func (r Result) Detail() string {
	if r.Err == nil {
		return ""
	}
	msg := strings.TrimSpace(r.Err.Error())
	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = strings.TrimSpace(msg[:i])
	}
	if utf8.RuneCountInString(msg) > maxDetailRunes {
		runes := []rune(msg)
		msg = string(runes[:maxDetailRunes]) + "..."
	}
	if msg == "" {
		msg = "unknown error"
	}
	return msg
}

// Classify maps an Authenticator return pair onto a Result, checking
// success first, then the second-factor and challenge signals.
func Classify(token string, err error) Result {
	switch {
	case err == nil && token != "":
		return Result{Outcome: OutcomeSuccess, Token: token}
	case err == nil:
		return Result{Outcome: OutcomeFailure, Err: ErrEmptyToken}
	case errors.Is(err, ErrSecondFactorRequired):
		return Result{Outcome: OutcomeSecondFactorRequired, Err: err}
	case errors.Is(err, ErrChallengeRequired):
		return Result{Outcome: OutcomeUnsupportedChallenge, Err: err}
	default:
		return Result{Outcome: OutcomeFailure, Err: err}
	}
}
