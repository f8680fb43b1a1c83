package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"atlvs-cli/internal/binding"
	"atlvs-cli/internal/model"
	"atlvs-cli/internal/store"
)

func bindingFor(h model.ResourceHandle, filters map[string]string) binding.Binding {
	return binding.Binding{Handle: h, Query: model.Query{Filters: filters}}
}

// waitFor blocks until cond holds for the channel's state.
func waitFor(t *testing.T, c *Channel, cond func(State) bool) State {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		st := c.State()
		if cond(st) {
			return st
		}
		select {
		case <-c.Changed():
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("condition not reached; last state: %+v", st)
		}
	}
}

func TestChannel_TasksInWorkspace(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	defer mem.Close()

	w2 := model.ResourceHandle{Resource: "project_tasks", Workspace: "W2"}
	for _, n := range []string{"Rig truss", "Focus lights"} {
		if _, err := mem.Insert(ctx, w1, model.DataItem{Name: n}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := mem.Insert(ctx, w2, model.DataItem{Name: "other tenant"}); err != nil {
		t.Fatal(err)
	}

	c := Open(ctx, mem, bindingFor(w1, nil))
	defer c.Close()

	st := waitFor(t, c, func(s State) bool { return !s.Loading })
	if st.Err != nil {
		t.Fatalf("unexpected error: %v", st.Err)
	}
	if len(st.Data) != 2 {
		t.Fatalf("expected 2 W1 tasks, got %d", len(st.Data))
	}

	added, err := mem.Insert(ctx, w1, model.DataItem{Name: "Sound check"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Insert(ctx, w2, model.DataItem{Name: "not ours"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, c, func(s State) bool { return len(s.Data) == 3 })

	if _, err := mem.Update(ctx, w1, added.ID, model.Patch{"status": "done"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, c, func(s State) bool {
		it, ok := c.Get(added.ID)
		return ok && it.Status == "done"
	})

	if err := mem.Delete(ctx, w1, added.ID); err != nil {
		t.Fatal(err)
	}
	st = waitFor(t, c, func(s State) bool { return len(s.Data) == 2 })
	for _, it := range st.Data {
		if it.Workspace != "W1" {
			t.Fatalf("foreign record in channel: %+v", it)
		}
	}
}

func TestChannel_FilteredViewDropsEditedOutRecords(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	defer mem.Close()

	todo, err := mem.Insert(ctx, w1, model.DataItem{Name: "Permits", Status: "todo"})
	if err != nil {
		t.Fatal(err)
	}
	c := Open(ctx, mem, bindingFor(w1, map[string]string{"status": "todo"}))
	defer c.Close()
	waitFor(t, c, func(s State) bool { return !s.Loading && len(s.Data) == 1 })

	if _, err := mem.Insert(ctx, w1, model.DataItem{Name: "Already done", Status: "done"}); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Update(ctx, w1, todo.ID, model.Patch{"status": "done"}); err != nil {
		t.Fatal(err)
	}
	st := waitFor(t, c, func(s State) bool { return len(s.Data) == 0 })
	if st.Anomalies != 0 {
		t.Fatalf("unexpected anomalies: %d", st.Anomalies)
	}
}

// fakeSource lets tests control when the bulk read returns and what the feed delivers.
type fakeSource struct {
	mu       sync.Mutex
	release  chan struct{}
	items    []model.DataItem
	listErr  error
	feed     chan model.ChangeEvent
	lists    int
	canceled int
}

func newFakeSource(items ...model.DataItem) *fakeSource {
	return &fakeSource{items: items, feed: make(chan model.ChangeEvent, 16)}
}

func (f *fakeSource) List(ctx context.Context, h model.ResourceHandle, q model.Query) ([]model.DataItem, error) {
	f.mu.Lock()
	f.lists++
	release := f.release
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			f.mu.Lock()
			f.canceled++
			f.mu.Unlock()
			// Simulate a driver that still hands back its result.
			return append([]model.DataItem(nil), f.items...), nil
		}
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.DataItem(nil), f.items...), nil
}

func (f *fakeSource) Subscribe(ctx context.Context, h model.ResourceHandle) (<-chan model.ChangeEvent, error) {
	return f.feed, nil
}

func TestChannel_LoadErrorKeepsNoRetry(t *testing.T) {
	src := newFakeSource()
	src.listErr = errors.New("connection refused")

	c := Open(context.Background(), src, bindingFor(w1, nil))
	defer c.Close()

	st := waitFor(t, c, func(s State) bool { return !s.Loading })
	var le *LoadError
	if !errors.As(st.Err, &le) || le.Op != "list" {
		t.Fatalf("expected list LoadError, got %v", st.Err)
	}
	if len(st.Data) != 0 {
		t.Fatalf("expected empty data, got %d", len(st.Data))
	}
	time.Sleep(50 * time.Millisecond)
	src.mu.Lock()
	defer src.mu.Unlock()
	if src.lists != 1 {
		t.Fatalf("expected exactly one bulk read, got %d", src.lists)
	}
}

func TestChannel_FeedClosedKeepsLastGoodData(t *testing.T) {
	src := newFakeSource(*rec("a", "A"))
	c := Open(context.Background(), src, bindingFor(w1, nil))
	defer c.Close()
	waitFor(t, c, func(s State) bool { return !s.Loading })

	close(src.feed)
	st := waitFor(t, c, func(s State) bool { return s.Err != nil })
	if !errors.Is(st.Err, ErrFeedClosed) {
		t.Fatalf("expected ErrFeedClosed, got %v", st.Err)
	}
	if len(st.Data) != 1 || st.Data[0].ID != "a" {
		t.Fatalf("last good data lost: %+v", st.Data)
	}
}

func TestChannel_AnomaliesAreCountedAndDropped(t *testing.T) {
	src := newFakeSource(*rec("a", "A"))
	c := Open(context.Background(), src, bindingFor(w1, nil))
	defer c.Close()
	waitFor(t, c, func(s State) bool { return !s.Loading })

	src.feed <- model.ChangeEvent{Op: model.OpUpdate, Handle: w1, ID: "a", Record: rec("b", "wrong")}
	src.feed <- model.ChangeEvent{Op: model.OpInsert, Handle: model.ResourceHandle{Resource: "project_tasks", Workspace: "W2"}, ID: "z", Record: rec("z", "Z")}
	src.feed <- model.ChangeEvent{Op: model.OpInsert, Handle: w1, ID: "c", Record: rec("c", "C")}

	st := waitFor(t, c, func(s State) bool { return len(s.Data) == 2 })
	if st.Anomalies != 2 {
		t.Fatalf("expected 2 anomalies, got %d", st.Anomalies)
	}
	if it, _ := c.Get("a"); it.Name != "A" {
		t.Fatalf("anomaly applied: %+v", it)
	}
}

func TestChannel_PendingIsSeparateFromData(t *testing.T) {
	src := newFakeSource()
	c := Open(context.Background(), src, bindingFor(w1, nil))
	defer c.Close()
	waitFor(t, c, func(s State) bool { return !s.Loading })

	c.AddPending("tok-1", model.DataItem{ID: "p1", Name: "optimistic"})
	c.AddPending("tok-2", model.DataItem{Name: "still sending"})
	st := c.State()
	if len(st.Pending) != 2 || len(st.Data) != 0 {
		t.Fatalf("pending merged into data: %+v", st)
	}

	src.feed <- model.ChangeEvent{Op: model.OpInsert, Handle: w1, ID: "p1", Record: rec("p1", "confirmed")}
	st = waitFor(t, c, func(s State) bool { return len(s.Data) == 1 })
	if len(st.Pending) != 1 || st.Pending[0].Token != "tok-2" {
		t.Fatalf("confirmed insert should retire its pending entry: %+v", st.Pending)
	}

	c.ResolvePending("tok-2")
	if st := c.State(); len(st.Pending) != 0 {
		t.Fatalf("pending not resolved: %+v", st.Pending)
	}
}

func TestChannel_CloseDiscardsAndStopsWriting(t *testing.T) {
	src := newFakeSource(*rec("a", "A"))
	c := Open(context.Background(), src, bindingFor(w1, nil))
	waitFor(t, c, func(s State) bool { return !s.Loading })

	c.Close()
	c.Close()
	if _, ok := <-c.Changed(); ok {
		// drain a buffered signal, then the channel must be closed
		if _, ok := <-c.Changed(); ok {
			t.Fatalf("changed channel still open after Close")
		}
	}
	src.feed <- model.ChangeEvent{Op: model.OpInsert, Handle: w1, ID: "b", Record: rec("b", "B")}
	c.AddPending("t", model.DataItem{Name: "x"})
	st := c.State()
	if len(st.Data) != 0 || len(st.Pending) != 0 {
		t.Fatalf("closed channel holds state: %+v", st)
	}
}
