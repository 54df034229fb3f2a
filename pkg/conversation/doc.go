// Package conversation drives the login dialogue.
//
// A Machine keeps at most one Session per conversation identity and moves it
// through Idle, AwaitingUsername, AwaitingPassword, AwaitingSecondFactor and
// Terminated. Every inbound Event for one conversation runs in that
// conversation's command queue lane, so steps for the same identity never
// overlap while different identities proceed concurrently.
//
// Sensitive input is deleted from the chat before anything else is sent in
// the same step. The password is passed straight to the provider and never
// stored on the Session.
package conversation
