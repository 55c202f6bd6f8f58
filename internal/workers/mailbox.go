package workers

import "sync"

// mailbox is an unbounded FIFO inbox. Senders never block; the owning worker blocks in take
// until a frame arrives or the mailbox is closed.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames [][]byte
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// put appends all frames as one unit so no other sender can interleave between them.
func (m *mailbox) put(frames ...[]byte) (depth int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return len(m.frames), false
	}
	m.frames = append(m.frames, frames...)
	m.cond.Signal()
	return len(m.frames), true
}

func (m *mailbox) take() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.frames) == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return nil, false
	}
	frame := m.frames[0]
	m.frames[0] = nil
	m.frames = m.frames[1:]
	return frame, true
}

// close wakes the worker and drops anything still queued.
func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.frames = nil
	m.cond.Broadcast()
}
