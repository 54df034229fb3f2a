// Package secret holds short-lived sensitive values behind opaque handles.
//
// A Vault stages a value and hands out a Handle. The value can be revealed
// for display until it is consumed, and consumed exactly once. Destroy zeroes
// the backing bytes. ShredFile overwrites an exported file before removing it.
package secret
