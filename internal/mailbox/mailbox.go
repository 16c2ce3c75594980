// Package mailbox holds the single-slot handoff between the hardware
// reader stream and the terminal UI poll. It is a freshness buffer,
// not a queue: an unread scan is overwritten by the next one.
package mailbox

import (
	"strings"
	"sync"
)

// Mailbox stores the most recent token read from the hardware stream.
type Mailbox struct {
	prefix string
	mu     sync.Mutex
	token  string
}

// New creates a mailbox recognizing frames that start with prefix.
// The prefix match is case-sensitive.
func New(prefix string) *Mailbox {
	if prefix == "" {
		prefix = "CARD:"
	}
	return &Mailbox{prefix: prefix}
}

// Publish accepts one raw line from the reader. Lines without the
// token prefix are rejected; recognized tokens overwrite any unread
// value in the slot. Returns whether the line carried a token.
func (m *Mailbox) Publish(raw string) bool {
	line := strings.TrimSpace(raw)
	if !strings.HasPrefix(line, m.prefix) {
		return false
	}
	token := normalize(strings.TrimPrefix(line, m.prefix))
	if token == "" {
		return false
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return true
}

// TakeLatest atomically reads and clears the slot. Two concurrent
// callers never both observe the same non-empty token; an empty slot
// yields ok=false.
func (m *Mailbox) TakeLatest() (string, bool) {
	m.mu.Lock()
	token := m.token
	m.token = ""
	m.mu.Unlock()
	return token, token != ""
}

// normalize trims the payload and strips internal whitespace, so
// "  12 34 56 " and "123456" are the same token.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), "")
}
