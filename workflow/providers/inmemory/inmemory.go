// Package inmemory provides a process-local workflow.WorkflowStore backed
// by a map, for tests and single-node deployments that don't need state to
// survive a restart.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/veridex/veridex/workflow"
)

// Store is an in-memory workflow.WorkflowStore.
type Store struct {
	mu     sync.Mutex
	states map[string]workflow.WorkflowState
}

// New creates an empty Store.
func New() *Store {
	return &Store{states: make(map[string]workflow.WorkflowState)}
}

// Save records or overwrites the state for state.WorkflowID.
func (s *Store) Save(_ context.Context, state workflow.WorkflowState) error {
	if state.WorkflowID == "" {
		return fmt.Errorf("workflow/inmemory: workflow ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.WorkflowID] = state
	return nil
}

// Load returns the stored state for workflowID, or (nil, nil) if absent.
func (s *Store) Load(_ context.Context, workflowID string) (*workflow.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[workflowID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// List returns every stored state matching filter.
func (s *Store) List(_ context.Context, filter workflow.WorkflowFilter) ([]workflow.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []workflow.WorkflowState
	for _, state := range s.states {
		if filter.Status != "" && state.Status != filter.Status {
			continue
		}
		results = append(results, state)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

// Delete removes the stored state for workflowID, if any.
func (s *Store) Delete(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, workflowID)
	return nil
}

var _ workflow.WorkflowStore = (*Store)(nil)
