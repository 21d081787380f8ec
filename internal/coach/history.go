package coach

import "sync"

// History is the in-memory record of completed messages for the current
// practice session. Capped; oldest messages fall off first.
type History struct {
	mu       sync.RWMutex
	messages []Event
	maxSize  int
}

// NewHistory creates a history keeping at most maxSize messages.
func NewHistory(maxSize int) *History {
	return &History{
		messages: make([]Event, 0, maxSize),
		maxSize:  maxSize,
	}
}

// Add records one message.
func (h *History) Add(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, evt)
	if len(h.messages) > h.maxSize {
		h.messages = h.messages[len(h.messages)-h.maxSize:]
	}
}

// All returns a copy of the recorded messages, oldest first.
func (h *History) All() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Event, len(h.messages))
	copy(result, h.messages)
	return result
}

// Reset clears the history for a new session.
func (h *History) Reset() {
	h.mu.Lock()
	h.messages = h.messages[:0]
	h.mu.Unlock()
}
