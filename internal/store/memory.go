package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"atlvs-cli/internal/model"

	"github.com/google/uuid"
)

// Memory is a process-local Store. Its change feed is pushed, not polled.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	seq     int64
	records map[resourceKey][]model.DataItem
	members map[string]map[string]model.Member
	subs    map[resourceKey]map[*memSub]struct{}
	closed  bool
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		now:     time.Now,
		records: map[resourceKey][]model.DataItem{},
		members: map[string]map[string]model.Member{},
		subs:    map[resourceKey]map[*memSub]struct{}{},
	}
}

// SetClock replaces the time source. Call before use.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, subs := range m.subs {
		for sub := range subs {
			sub.stop()
		}
	}
	m.subs = map[resourceKey]map[*memSub]struct{}{}
	return nil
}

func (m *Memory) List(ctx context.Context, h model.ResourceHandle, q model.Query) ([]model.DataItem, error) {
	if err := CheckHandle(h); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := []model.DataItem{}
	for _, it := range m.records[keyFor(h)] {
		if it.Matches(q.Filters) {
			out = append(out, it.Clone())
		}
	}
	model.SortItems(out, q)
	return out, nil
}

func (m *Memory) Get(ctx context.Context, h model.ResourceHandle, id string) (model.DataItem, error) {
	if err := CheckHandle(h); err != nil {
		return model.DataItem{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexLocked(h, id); i >= 0 {
		return m.records[keyFor(h)][i].Clone(), nil
	}
	return model.DataItem{}, ErrNotFound
}

func (m *Memory) indexLocked(h model.ResourceHandle, id string) int {
	id = strings.TrimSpace(id)
	for i, it := range m.records[keyFor(h)] {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) Insert(ctx context.Context, h model.ResourceHandle, rec model.DataItem) (model.DataItem, error) {
	if err := CheckHandle(h); err != nil {
		return model.DataItem{}, err
	}
	if rec.Workspace != "" && rec.Workspace != h.Workspace {
		return model.DataItem{}, &ConstraintError{Field: "workspace_id", Reason: "does not match the resource scope"}
	}
	if strings.TrimSpace(rec.Name) == "" {
		return model.DataItem{}, &ConstraintError{Field: "name", Reason: "is required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return model.DataItem{}, ErrClosed
	}
	rec = rec.Clone()
	rec.Workspace = h.Workspace
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if m.indexLocked(h, rec.ID) >= 0 {
		return model.DataItem{}, &ConstraintError{Field: "id", Reason: "already exists"}
	}
	now := m.now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	k := keyFor(h)
	m.records[k] = append(m.records[k], rec)
	m.publishLocked(h, model.OpInsert, rec.ID, &rec)
	return rec.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, h model.ResourceHandle, id string, patch model.Patch) (model.DataItem, error) {
	if err := CheckHandle(h); err != nil {
		return model.DataItem{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return model.DataItem{}, ErrClosed
	}
	i := m.indexLocked(h, id)
	if i < 0 {
		return model.DataItem{}, ErrNotFound
	}
	k := keyFor(h)
	cur := m.records[k][i]
	next, err := ApplyPatch(cur, patch)
	if err != nil {
		return model.DataItem{}, err
	}
	next.UpdatedAt = m.now().UTC()
	if !next.UpdatedAt.After(cur.UpdatedAt) {
		next.UpdatedAt = cur.UpdatedAt.Add(time.Millisecond)
	}
	m.records[k][i] = next
	m.publishLocked(h, model.OpUpdate, next.ID, &next)
	return next.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, h model.ResourceHandle, id string) error {
	if err := CheckHandle(h); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	i := m.indexLocked(h, id)
	if i < 0 {
		return ErrNotFound
	}
	k := keyFor(h)
	gone := m.records[k][i].ID
	m.records[k] = append(m.records[k][:i], m.records[k][i+1:]...)
	m.publishLocked(h, model.OpDelete, gone, nil)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, h model.ResourceHandle) (<-chan model.ChangeEvent, error) {
	if err := CheckHandle(h); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	sub := &memSub{wake: make(chan struct{}, 1), quit: make(chan struct{})}
	k := keyFor(h)
	if m.subs[k] == nil {
		m.subs[k] = map[*memSub]struct{}{}
	}
	m.subs[k][sub] = struct{}{}

	out := make(chan model.ChangeEvent)
	go func() {
		defer close(out)
		defer func() {
			m.mu.Lock()
			delete(m.subs[k], sub)
			m.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.quit:
				return
			case <-sub.wake:
			}
			for _, ev := range sub.drain() {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				case <-sub.quit:
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *Memory) publishLocked(h model.ResourceHandle, op model.ChangeOp, id string, rec *model.DataItem) {
	m.seq++
	for sub := range m.subs[keyFor(h)] {
		ev := model.ChangeEvent{Op: op, Handle: h, ID: id, Seq: m.seq}
		if rec != nil {
			c := rec.Clone()
			ev.Record = &c
		}
		sub.push(ev)
	}
}

// memSub queues events without bound so a slow reader never blocks writers.
type memSub struct {
	mu    sync.Mutex
	queue []model.ChangeEvent
	wake  chan struct{}
	quit  chan struct{}
	once  sync.Once
}

func (s *memSub) push(ev model.ChangeEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memSub) drain() []model.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

func (s *memSub) stop() {
	s.once.Do(func() { close(s.quit) })
}

func (m *Memory) Role(ctx context.Context, workspace, actorID string) (model.Role, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[strings.TrimSpace(workspace)][strings.TrimSpace(actorID)]
	return mem.Role, ok, nil
}

func (m *Memory) PutMember(ctx context.Context, mem model.Member) error {
	mem.Workspace = strings.TrimSpace(mem.Workspace)
	mem.ActorID = strings.TrimSpace(mem.ActorID)
	if mem.Workspace == "" || mem.ActorID == "" {
		return &ConstraintError{Field: "actor_id", Reason: "workspace and actor are required"}
	}
	role, ok := model.ParseRole(string(mem.Role))
	if !ok {
		return &ConstraintError{Field: "role", Reason: "must be one of owner, admin, member, guest"}
	}
	mem.Role = role
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem.AddedAt.IsZero() {
		mem.AddedAt = m.now().UTC()
	}
	if m.members[mem.Workspace] == nil {
		m.members[mem.Workspace] = map[string]model.Member{}
	}
	if prev, ok := m.members[mem.Workspace][mem.ActorID]; ok {
		mem.AddedAt = prev.AddedAt
	}
	m.members[mem.Workspace][mem.ActorID] = mem
	return nil
}

func (m *Memory) RemoveMember(ctx context.Context, workspace, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := m.members[strings.TrimSpace(workspace)]
	if _, ok := ws[strings.TrimSpace(actorID)]; !ok {
		return ErrNotFound
	}
	delete(ws, strings.TrimSpace(actorID))
	return nil
}

func (m *Memory) ListMembers(ctx context.Context, workspace string) ([]model.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Member{}
	for _, mem := range m.members[strings.TrimSpace(workspace)] {
		out = append(out, mem)
	}
	sortMembers(out)
	return out, nil
}

func sortMembers(ms []model.Member) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].ActorID < ms[j].ActorID })
}
