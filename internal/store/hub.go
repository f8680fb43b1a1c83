package store

import (
	"strings"
	"sync"

	"atlvs-cli/internal/model"
)

type resourceKey struct {
	resource  string
	workspace string
}

func keyFor(h model.ResourceHandle) resourceKey {
	return resourceKey{resource: strings.TrimSpace(h.Resource), workspace: strings.TrimSpace(h.Workspace)}
}

func (k resourceKey) String() string {
	return k.resource + "@" + k.workspace
}

// resourceHub wakes feed pollers for one handle as soon as a local write commits.
type resourceHub struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newResourceHub() *resourceHub {
	return &resourceHub{subs: map[chan struct{}]struct{}{}}
}

func (h *resourceHub) subscribe() (ch chan struct{}, cancel func()) {
	ch = make(chan struct{}, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *resourceHub) broadcast() {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

type broadcaster struct {
	mu   sync.Mutex
	hubs map[resourceKey]*resourceHub
}

func newBroadcaster() *broadcaster {
	return &broadcaster{hubs: map[resourceKey]*resourceHub{}}
}

func (b *broadcaster) hubFor(key resourceKey) *resourceHub {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.hubs[key]
	if h == nil {
		h = newResourceHub()
		b.hubs[key] = h
	}
	return h
}

func (b *broadcaster) notify(key resourceKey) {
	b.mu.Lock()
	h := b.hubs[key]
	b.mu.Unlock()
	if h != nil {
		h.broadcast()
	}
}
