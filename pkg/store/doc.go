// Package store persists extracted session tokens.
//
// Log is an append-only text file with one "<username>: <token>" line per
// successful extraction. Artifacts are single-use export files placed in a
// per-conversation directory and shredded after delivery.
package store
