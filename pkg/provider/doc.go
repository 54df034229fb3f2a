// Package provider talks to the identity provider that performs the actual
// login.
//
// An Authenticator reports provider conditions as errors. Gateway wraps it
// into Sessions whose calls return a tagged Result instead, so callers switch
// on Result.Outcome and never inspect provider errors directly. A Session is
// the provider client handle: it is opened once per conversation and must be
// reused for the second-factor step.
package provider
