// Package state implements the scoped key/value store.
//
// Three scopes exist: global (process lifetime), session and task (namespaced
// by their owning id, garbage collected on teardown). Keys in different
// scopes never collide even when textually identical. Every entry may carry a
// TTL; expired entries read as absent and are lazily purged.
//
// Reads return an explicit (value, ok) pair rather than a default value that
// could be mistaken for stored data.
package state
