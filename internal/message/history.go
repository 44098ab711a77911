package message

import (
	"sync"

	"github.com/deepagent-run/deepagent/internal/state"
)

// History is the agent's monotonically growing message log. Appends are
// sequential and totally ordered; the core loop is the sole writer, while
// tools and the planner take read-only snapshots.
type History struct {
	mu       sync.RWMutex
	messages []AgentMessage
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds messages to the end of the log, in order.
func (h *History) Append(msgs ...AgentMessage) {
	if len(msgs) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
}

// Snapshot returns a prefix-consistent copy of the log.
func (h *History) Snapshot() []AgentMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]AgentMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the current message count.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// ReplacePrefix swaps the first n messages for replacement, used by
// summarization to collapse an old prefix into a synthesized summary while
// keeping the remaining suffix verbatim.
func (h *History) ReplacePrefix(n int, replacement []AgentMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > len(h.messages) {
		n = len(h.messages)
	}
	kept := make([]AgentMessage, len(h.messages)-n)
	copy(kept, h.messages[n:])
	h.messages = append(append([]AgentMessage{}, replacement...), kept...)
}

// Apply is C1's apply(state, command) operation: it mutates the guarded
// state in place per the diff's reducer laws, then appends the command's
// messages to history. Total; never fails.
func Apply(handle *state.Handle, history *History, cmd Command) {
	if handle != nil {
		handle.Apply(cmd.State)
	}
	if history != nil {
		history.Append(cmd.Messages...)
	}
}
