package agent

import (
	"sync"

	"github.com/parleyhq/parley/core"
)

// History is the append-only ordered conversation record of a single agent.
// It survives across turns and across delegation calls: when another agent
// delegates here, the delegated turn extends this same history.
//
// Appends and snapshots are guarded by a mutex so concurrent runs observe a
// consistent sequence. Snapshots are defensive copies; parts are treated as
// immutable once appended.
type History struct {
	mu       sync.RWMutex
	messages []core.Content
}

// NewHistory constructs an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds messages to the end of the history in the given order.
func (h *History) Append(msgs ...core.Content) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
}

// Snapshot returns a copy of the history in append order.
func (h *History) Snapshot() []core.Content {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]core.Content, len(h.messages))
	copy(out, h.messages)

	return out
}

// Len returns the number of messages recorded.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.messages)
}

// Last returns the most recent message, with ok reporting whether one exists.
func (h *History) Last() (core.Content, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.messages) == 0 {
		return core.Content{}, false
	}

	return h.messages[len(h.messages)-1], true
}
