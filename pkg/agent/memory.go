package agent

import "sync"

// DefaultMemoryWindow is the number of turns sent to the reasoning provider.
const DefaultMemoryWindow = 100

// Memory is the append-only conversation of one loop.
type Memory struct {
	mu       sync.RWMutex
	messages []Message
	window   int
}

// NewMemory creates an empty memory. window bounds Window(); zero means DefaultMemoryWindow.
func NewMemory(window int) *Memory {
	if window <= 0 {
		window = DefaultMemoryWindow
	}
	return &Memory{window: window}
}

func (m *Memory) Add(msgs ...Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msgs...)
}

// Messages returns a copy of every turn.
func (m *Memory) Messages() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Recent returns a copy of the last n turns.
func (m *Memory) Recent(n int) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n > len(m.messages) {
		n = len(m.messages)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Message, n)
	copy(out, m.messages[len(m.messages)-n:])
	return out
}

// Window returns the turns handed to the reasoning provider. Tool results
// orphaned by the cut are dropped from the front.
func (m *Memory) Window() []Message {
	recent := m.Recent(m.window)
	for len(recent) > 0 && recent[0].Role == RoleTool {
		recent = recent[1:]
	}
	return recent
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}
