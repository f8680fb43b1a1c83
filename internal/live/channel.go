// Package live keeps an in-memory copy of one resource in sync with its
// backing store: a bulk read, then change events folded in as they arrive.
package live

import (
	"context"
	"log/slog"
	"sync"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/model"
)

// Source is the part of a store a channel reads from.
type Source interface {
	List(ctx context.Context, h model.ResourceHandle, q model.Query) ([]model.DataItem, error)
	Subscribe(ctx context.Context, h model.ResourceHandle) (<-chan model.ChangeEvent, error)
}

// State is a snapshot of a channel. Data is shared with the channel and must
// not be modified.
type State struct {
	Handle    model.ResourceHandle
	Data      []model.DataItem
	Loading   bool
	Err       error
	Anomalies int
	Pending   []Pending
}

// Pending is an optimistic record shown while its command is in flight.
type Pending struct {
	Token string
	Item  model.DataItem
}

type Option func(*Channel)

func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.log = l
		}
	}
}

type Channel struct {
	b   binding.Binding
	src Source
	log *slog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	changed  chan struct{}
	watchers map[chan struct{}]struct{}

	mu        sync.RWMutex
	closed    bool
	data      []model.DataItem
	loading   bool
	err       error
	anomalies int
	pending   []Pending
}

// Open starts syncing b from src. It returns immediately with Loading set.
func Open(ctx context.Context, src Source, b binding.Binding, opts ...Option) *Channel {
	ctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		b:        b,
		src:      src,
		log:      slog.Default(),
		cancel:   cancel,
		done:     make(chan struct{}),
		changed:  make(chan struct{}, 1),
		watchers: map[chan struct{}]struct{}{},
		loading:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("handle", b.Handle.String())
	go c.run(ctx)
	return c
}

func (c *Channel) Binding() binding.Binding { return c.b }

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	// Subscribe before the bulk read so nothing committed in between is lost.
	// Apply is idempotent, so events that overlap the read are harmless.
	feed, err := c.src.Subscribe(ctx, c.b.Handle)
	if err != nil {
		c.fail(ctx, &LoadError{Op: "subscribe", Err: err})
		return
	}
	items, err := c.src.List(ctx, c.b.Handle, c.b.Query)
	if err != nil {
		c.fail(ctx, &LoadError{Op: "list", Err: err})
		return
	}
	c.update(ctx, func() {
		c.data = items
		c.loading = false
		c.err = nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				c.fail(ctx, &LoadError{Op: "subscribe", Err: ErrFeedClosed})
				return
			}
			c.apply(ctx, ev)
		}
	}
}

func (c *Channel) apply(ctx context.Context, ev model.ChangeEvent) {
	if ev.Handle != c.b.Handle {
		c.anomaly(ctx, &AnomalyError{Op: string(ev.Op), ID: ev.ID, Reason: "event for " + ev.Handle.String()})
		return
	}
	// A record edited out of a filtered view leaves it.
	if ev.Record != nil && len(c.b.Query.Filters) > 0 && !ev.Record.Matches(c.b.Query.Filters) {
		ev = model.ChangeEvent{Op: model.OpDelete, Handle: ev.Handle, ID: ev.ID, Seq: ev.Seq}
	}
	c.mu.RLock()
	cur := c.data
	c.mu.RUnlock()

	next, err := Apply(cur, ev)
	if err != nil {
		c.anomaly(ctx, err)
		return
	}
	c.update(ctx, func() {
		c.data = next
		if ev.Op == model.OpInsert {
			c.dropPendingFor(ev.ID)
		}
	})
}

func (c *Channel) anomaly(ctx context.Context, err error) {
	c.log.Warn("reconciliation anomaly", "err", err)
	c.update(ctx, func() { c.anomalies++ })
}

// fail records err and keeps whatever data the channel already holds.
func (c *Channel) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	c.log.Warn("live query failed", "err", err)
	c.update(ctx, func() {
		c.loading = false
		c.err = err
	})
}

// update runs fn under the lock unless the channel is closing, then signals.
func (c *Channel) update(ctx context.Context, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || ctx.Err() != nil {
		return
	}
	fn()
	c.signalLocked()
}

func (c *Channel) signalLocked() {
	notify(c.changed)
	for w := range c.watchers {
		notify(w)
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Watch returns a private change signal for one of several consumers sharing
// a channel, and a func to stop it. The signal is closed by Close or stop.
func (c *Channel) Watch() (<-chan struct{}, func()) {
	w := make(chan struct{}, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(w)
		return w, func() {}
	}
	c.watchers[w] = struct{}{}
	notify(w)
	var once sync.Once
	return w, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.watchers[w]; ok {
				delete(c.watchers, w)
				close(w)
			}
		})
	}
}

// Changed delivers a coalesced signal after every state change. It is closed
// by Close.
func (c *Channel) Changed() <-chan struct{} { return c.changed }

func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := State{
		Handle:    c.b.Handle,
		Data:      c.data,
		Loading:   c.loading,
		Err:       c.err,
		Anomalies: c.anomalies,
	}
	if len(c.pending) > 0 {
		s.Pending = append([]Pending(nil), c.pending...)
	}
	if s.Data == nil {
		s.Data = []model.DataItem{}
	}
	return s
}

// Get returns the current copy of one record.
func (c *Channel) Get(id string) (model.DataItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := indexOf(c.data, id); i >= 0 {
		return c.data[i].Clone(), true
	}
	return model.DataItem{}, false
}

// AddPending shows it under token until ResolvePending or a matching insert.
func (c *Channel) AddPending(token string, it model.DataItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for i := range c.pending {
		if c.pending[i].Token == token {
			c.pending[i].Item = it
			c.signalLocked()
			return
		}
	}
	c.pending = append(c.pending, Pending{Token: token, Item: it})
	c.signalLocked()
}

func (c *Channel) ResolvePending(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for i := range c.pending {
		if c.pending[i].Token == token {
			c.pending = append(c.pending[:i:i], c.pending[i+1:]...)
			c.signalLocked()
			return
		}
	}
}

func (c *Channel) dropPendingFor(id string) {
	kept := c.pending[:0:0]
	for _, p := range c.pending {
		if p.Item.ID == "" || p.Item.ID != id {
			kept = append(kept, p)
		}
	}
	c.pending = kept
}

// Close stops the bulk read and the feed, waits for the sync goroutine and
// drops the collection. It is safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	<-c.done

	c.mu.Lock()
	c.data = nil
	c.pending = nil
	c.loading = false
	close(c.changed)
	for w := range c.watchers {
		close(w)
	}
	c.watchers = nil
	c.mu.Unlock()
}

// Done is closed once the sync goroutine has exited.
func (c *Channel) Done() <-chan struct{} { return c.done }
