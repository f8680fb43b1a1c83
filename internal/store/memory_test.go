package store_test

import (
	"context"
	"testing"
	"time"

	"atlvs-cli/internal/model"
	"atlvs-cli/internal/store"
	"atlvs-cli/internal/store/storetest"
)

func TestMemory_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return store.NewMemory() })
}

func TestMemory_SlowReaderDoesNotBlockWriters(t *testing.T) {
	m := store.NewMemory()
	defer m.Close()
	h := model.ResourceHandle{Resource: "assets", Workspace: "W1"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, err := m.Subscribe(ctx, h)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if _, err := m.Insert(ctx, h, model.DataItem{Name: "crate"}); err != nil {
				t.Errorf("insert %d: %v", i, err)
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("writers blocked on an unread feed")
	}

	var last int64
	for i := 0; i < 100; i++ {
		ev := <-feed
		if ev.Seq <= last {
			t.Fatalf("sequence went backwards: %d after %d", ev.Seq, last)
		}
		last = ev.Seq
	}
}
