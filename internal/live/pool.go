package live

import (
	"context"
	"encoding/json"
	"sync"

	"atlvs-cli/internal/binding"
)

// Pool shares one channel between every consumer of the same handle and
// query. The last release closes it.
type Pool struct {
	src  Source
	opts []Option

	mu      sync.Mutex
	entries map[string]*poolEntry
}

type poolEntry struct {
	ch   *Channel
	refs int
}

func NewPool(src Source, opts ...Option) *Pool {
	return &Pool{src: src, opts: opts, entries: map[string]*poolEntry{}}
}

func poolKey(b binding.Binding) string {
	q, _ := json.Marshal(b.Query)
	return b.Handle.String() + "|" + string(q)
}

// Acquire returns the shared channel for b. The channel outlives ctx's
// cancellation; call release when done.
//
// A shared channel that has failed or closed is not handed out again: the
// next Acquire opens a fresh one under the key, and holders of the failed
// channel keep it until they release it.
func (p *Pool) Acquire(ctx context.Context, b binding.Binding) (*Channel, func()) {
	key := poolKey(b)

	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[key]
	if e != nil && e.dead() {
		delete(p.entries, key)
		e = nil
	}
	if e == nil {
		e = &poolEntry{ch: Open(context.WithoutCancel(ctx), p.src, b, p.opts...)}
		p.entries[key] = e
	}
	e.refs++

	var once sync.Once
	return e.ch, func() {
		once.Do(func() { p.release(key, e) })
	}
}

func (e *poolEntry) dead() bool {
	select {
	case <-e.ch.Done():
		return true
	default:
	}
	return e.ch.State().Err != nil
}

func (p *Pool) release(key string, e *poolEntry) {
	p.mu.Lock()
	e.refs--
	last := e.refs == 0
	if last && p.entries[key] == e {
		delete(p.entries, key)
	}
	p.mu.Unlock()
	if last {
		e.ch.Close()
	}
}

// Len is the number of open shared channels.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close closes every shared channel regardless of outstanding references.
func (p *Pool) Close() {
	p.mu.Lock()
	entries := p.entries
	p.entries = map[string]*poolEntry{}
	p.mu.Unlock()
	for _, e := range entries {
		e.ch.Close()
	}
}
