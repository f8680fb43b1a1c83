package live

import (
	"context"
	"sync"

	"atlvs-cli/internal/binding"
)

// Mount holds the one channel a surface is currently showing. Switching
// closes the old channel before opening the next, so a slow response for a
// previous tab can never land in the new one.
type Mount struct {
	src  Source
	opts []Option

	mu  sync.Mutex
	cur *Channel
	gen uint64
}

func NewMount(src Source, opts ...Option) *Mount {
	return &Mount{src: src, opts: opts}
}

// Switch mounts b and returns the new channel with its generation.
func (m *Mount) Switch(ctx context.Context, b binding.Binding) (*Channel, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		m.cur.Close()
	}
	m.gen++
	m.cur = Open(ctx, m.src, b, m.opts...)
	return m.cur, m.gen
}

// Current returns the mounted channel, or nil before the first Switch.
func (m *Mount) Current() (*Channel, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur, m.gen
}

// IsCurrent reports whether gen is still the mounted generation.
func (m *Mount) IsCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && m.cur != nil
}

func (m *Mount) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		m.cur.Close()
		m.cur = nil
	}
	m.gen++
}
