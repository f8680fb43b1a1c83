package live

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPool_SharesAndRefcounts(t *testing.T) {
	p := NewPool(newFakeSource(*rec("a", "A")))
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	b := bindingFor(w1, nil)
	c1, release1 := p.Acquire(ctx, b)
	c2, release2 := p.Acquire(context.Background(), b)
	if c1 != c2 {
		t.Fatalf("same binding should share a channel")
	}
	other, releaseOther := p.Acquire(ctx, bindingFor(w1, map[string]string{"status": "todo"}))
	if other == c1 {
		t.Fatalf("different query should not share a channel")
	}
	if p.Len() != 2 {
		t.Fatalf("expected 2 shared channels, got %d", p.Len())
	}

	// The first acquirer's context ending must not tear down the shared channel.
	cancel()
	waitFor(t, c1, func(s State) bool { return !s.Loading && len(s.Data) == 1 })

	release1()
	release1()
	select {
	case <-c1.Done():
		t.Fatalf("channel closed while still referenced")
	default:
	}

	release2()
	select {
	case <-c1.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("last release did not close the channel")
	}
	releaseOther()
	if p.Len() != 0 {
		t.Fatalf("expected empty pool, got %d", p.Len())
	}
}

func TestChannel_WatchFansOut(t *testing.T) {
	p := NewPool(newFakeSource(*rec("a", "A")))
	defer p.Close()

	c, release := p.Acquire(context.Background(), bindingFor(w1, nil))
	w1sig, stop1 := c.Watch()
	w2sig, stop2 := c.Watch()
	defer stop2()

	for _, w := range []<-chan struct{}{w1sig, w2sig} {
		select {
		case <-w:
		case <-time.After(2 * time.Second):
			t.Fatalf("watcher missed the initial signal")
		}
	}

	stop1()
	stop1()
	if _, ok := <-w1sig; ok {
		t.Fatalf("stopped watcher still open")
	}

	release()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-w2sig:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("Close did not close remaining watchers")
		}
	}
}

func TestPool_FailedChannelIsReplacedOnAcquire(t *testing.T) {
	src := newFakeSource(*rec("a", "A"))
	src.listErr = errors.New("transient")
	p := NewPool(src)
	defer p.Close()

	b := bindingFor(w1, nil)
	failed, releaseFailed := p.Acquire(context.Background(), b)
	waitFor(t, failed, func(s State) bool { return s.Err != nil })

	src.mu.Lock()
	src.listErr = nil
	src.mu.Unlock()

	fresh, releaseFresh := p.Acquire(context.Background(), b)
	if fresh == failed {
		t.Fatalf("acquire after a load failure returned the failed channel")
	}
	st := waitFor(t, fresh, func(s State) bool { return !s.Loading })
	if st.Err != nil || len(st.Data) != 1 {
		t.Fatalf("fresh channel state: err=%v data=%d", st.Err, len(st.Data))
	}
	src.mu.Lock()
	lists := src.lists
	src.mu.Unlock()
	if lists != 2 {
		t.Fatalf("expected a second bulk read, got %d", lists)
	}

	again, releaseAgain := p.Acquire(context.Background(), b)
	if again != fresh {
		t.Fatalf("healthy channel should be shared")
	}
	releaseAgain()

	releaseFailed()
	select {
	case <-failed.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("releasing the failed channel did not close it")
	}
	select {
	case <-fresh.Done():
		t.Fatalf("releasing the failed channel closed its replacement")
	default:
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 shared channel, got %d", p.Len())
	}
	releaseFresh()
	if p.Len() != 0 {
		t.Fatalf("expected empty pool, got %d", p.Len())
	}
}
