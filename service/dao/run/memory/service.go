// Package memory provides an in-memory run snapshot store.
package memory

import (
	"context"
	"sync"

	"github.com/zerotoship/flow/runtime/execution"
	"github.com/zerotoship/flow/service/dao"
	"github.com/zerotoship/flow/service/dao/criteria"
)

// Service implements an in-memory, thread-safe store for run snapshots.
type Service struct {
	runs map[string]*execution.Run
	mux  sync.RWMutex
}

var _ dao.Service[string, execution.Run] = (*Service)(nil)

func (s *Service) Save(_ context.Context, run *execution.Run) error {
	if run == nil {
		return dao.ErrNilEntity
	}
	if run.ID == "" {
		return dao.ErrInvalidID
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if existing, ok := s.runs[run.ID]; ok && existing != nil {
		existing.CopyFrom(run)
	} else {
		s.runs[run.ID] = run
	}
	return nil
}

func (s *Service) Load(_ context.Context, id string) (*execution.Run, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}

	s.mux.RLock()
	run, ok := s.runs[id]
	s.mux.RUnlock()

	if !ok {
		return nil, dao.ErrNotFound
	}
	return run, nil
}

func (s *Service) Delete(_ context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if _, ok := s.runs[id]; !ok {
		return dao.ErrNotFound
	}
	delete(s.runs, id)
	return nil
}

func (s *Service) List(_ context.Context, parameters ...*dao.Parameter) ([]*execution.Run, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	out := make([]*execution.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if !criteria.FilterByState(run.State, parameters) {
			continue
		}
		out = append(out, run)
	}
	return out, nil
}

func New() *Service {
	return &Service{runs: map[string]*execution.Run{}}
}
