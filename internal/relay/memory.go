package relay

import (
	"context"
	"sync"

	"github.com/swapline/swapline/pkg/models"
)

// Memory is a process-local relay for tests and single-process runs.
// Slow subscribers are dropped-from, never waited on.
type Memory struct {
	mu   sync.RWMutex
	subs map[chan models.StatusEvent]struct{}
}

// NewMemory creates an in-memory relay.
func NewMemory() *Memory {
	return &Memory{subs: make(map[chan models.StatusEvent]struct{})}
}

func (m *Memory) Publish(_ context.Context, event models.StatusEvent) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subs {
		select {
		case ch <- event:
		default:
			// drop for slow subscriber
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context) (<-chan models.StatusEvent, func(), error) {
	ch := make(chan models.StatusEvent, 256)

	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, ch)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, stop, nil
}
