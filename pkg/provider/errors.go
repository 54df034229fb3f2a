package provider

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrSecondFactorRequired means the password was accepted and a one-time code is needed.
	ErrSecondFactorRequired = errors.New("two-factor authentication required")

	// ErrChallengeRequired means the provider wants a verification step this bot cannot perform.
	ErrChallengeRequired = errors.New("account verification challenge required")

	// ErrNoPendingSecondFactor is returned by TwoFactorLogin without a preceding ErrSecondFactorRequired.
	ErrNoPendingSecondFactor = errors.New("no pending two-factor login")

	// ErrClientClosed is returned by calls on a closed client.
	ErrClientClosed = errors.New("provider client closed")

	// ErrEmptyToken is returned when the provider reports success without a token.
	ErrEmptyToken = errors.New("provider returned an empty session token")
)

// Error is a failure reported by the provider itself.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Code == "":
		return genericRejection
	case e.Code == "":
		return e.Message
	case e.Message == "":
		return e.Code
	default:
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
}

// scrubbedError replaces secret values in an error message while keeping
// the wrapped chain for errors.Is.
type scrubbedError struct {
	err error
	msg string
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }

// minMaskedSecret is the shortest secret masked in place. Shorter ones
// match ordinary words, so the whole message is replaced instead.
const minMaskedSecret = 4

const genericRejection = "login rejected by provider"

func scrub(err error, secrets ...string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	changed := false
	for _, s := range secrets {
		if s == "" || !strings.Contains(msg, s) {
			continue
		}
		if utf8.RuneCountInString(s) < minMaskedSecret {
			return &scrubbedError{err: err, msg: genericRejection}
		}
		msg = strings.ReplaceAll(msg, s, "***")
		changed = true
	}
	if !changed {
		return err
	}
	return &scrubbedError{err: err, msg: msg}
}
