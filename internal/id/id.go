// Package id provides prefixed, k-sortable session identifiers.
package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies a terminal session (term_<ULID>).
type SessionID string

const sessionPrefix = "term"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewSessionID generates a new session identifier. IDs are lexicographically
// sortable by creation time, which keeps session listings stable.
func NewSessionID() SessionID {
	entropyMu.Lock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	return SessionID(sessionPrefix + "_" + u.String())
}

// String returns the ID as a plain string.
func (s SessionID) String() string {
	return string(s)
}
