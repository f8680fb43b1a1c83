// Package session tracks the record open in a detail pane. It holds only the
// record's id and always reads the record back from the live channel, so the
// pane shows what the channel shows.
package session

import (
	"context"
	"errors"
	"sync"

	"atlvs-cli/internal/command"
	"atlvs-cli/internal/model"
)

var ErrNoSelection = errors.New("no record selected")

// Records is where the session reads the current copy of a record from.
// *live.Channel implements it.
type Records interface {
	Get(id string) (model.DataItem, bool)
}

// Mutator applies edits. *command.Dispatcher implements it.
type Mutator interface {
	Update(ctx context.Context, h model.ResourceHandle, id string, patch model.Patch) (model.DataItem, error)
	Delete(ctx context.Context, h model.ResourceHandle, id string) error
}

type Session struct {
	h    model.ResourceHandle
	recs Records
	cmd  Mutator

	mu sync.Mutex
	id string
}

func New(h model.ResourceHandle, recs Records, cmd Mutator) *Session {
	return &Session{h: h, recs: recs, cmd: cmd}
}

func (s *Session) Select(it model.DataItem) {
	s.mu.Lock()
	s.id = it.ID
	s.mu.Unlock()
}

func (s *Session) Close() {
	s.mu.Lock()
	s.id = ""
	s.mu.Unlock()
}

// Open reports whether a record is selected.
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id != ""
}

// Current returns the selected record as the channel has it now. It reports
// false when nothing is selected or the record has left the channel.
func (s *Session) Current() (model.DataItem, bool) {
	s.mu.Lock()
	id := s.id
	s.mu.Unlock()
	if id == "" {
		return model.DataItem{}, false
	}
	return s.recs.Get(id)
}

// resolve returns the selected id after checking the record is still in the
// channel, closing the session when it is not.
func (s *Session) resolve() (string, error) {
	s.mu.Lock()
	id := s.id
	s.mu.Unlock()
	if id == "" {
		return "", ErrNoSelection
	}
	if _, ok := s.recs.Get(id); !ok {
		s.closeIf(id)
		return "", &command.NotFoundError{Resource: s.h.String(), ID: id}
	}
	return id, nil
}

// closeIf closes the session unless another record was selected meanwhile.
func (s *Session) closeIf(id string) {
	s.mu.Lock()
	if s.id == id {
		s.id = ""
	}
	s.mu.Unlock()
}

func (s *Session) ApplyUpdate(ctx context.Context, patch model.Patch) (model.DataItem, error) {
	id, err := s.resolve()
	if err != nil {
		return model.DataItem{}, err
	}
	it, err := s.cmd.Update(ctx, s.h, id, patch)
	if err != nil {
		if command.KindOf(err) == command.KindNotFound {
			s.closeIf(id)
		}
		return model.DataItem{}, err
	}
	return it, nil
}

func (s *Session) ApplyDelete(ctx context.Context) error {
	id, err := s.resolve()
	if err != nil {
		return err
	}
	if err := s.cmd.Delete(ctx, s.h, id); err != nil {
		if command.KindOf(err) == command.KindNotFound {
			s.closeIf(id)
		}
		return err
	}
	s.closeIf(id)
	return nil
}
