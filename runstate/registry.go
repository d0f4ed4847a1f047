package runstate

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the Scheduler-wide collection of in-flight Runs, keyed by
// pipeline_exec_id. It is the single shared mutable collection in the
// Scheduler (spec.md §9 "Global state"), guarded by one RWMutex rather than
// an ambient singleton.
type Registry struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*Run
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[uuid.UUID]*Run)}
}

// Store installs a Run under its pipeline_exec_id.
func (reg *Registry) Store(runID uuid.UUID, run *Run) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.runs[runID] = run
}

// Get retrieves a Run by pipeline_exec_id.
func (reg *Registry) Get(runID uuid.UUID) (*Run, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	run, ok := reg.runs[runID]
	return run, ok
}

// Delete removes a Run, e.g. when it reaches a terminal status
// (spec.md §3: RunState is "destroyed when the run enters a terminal
// status or its process exits").
func (reg *Registry) Delete(runID uuid.UUID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.runs, runID)
}

// Len reports how many runs are currently tracked.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.runs)
}
