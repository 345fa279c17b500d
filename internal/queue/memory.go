package queue

import (
	"context"
	"sync"
)

// MemorySubmitter records submitted jobs in order. It backs tests and the
// single-process mode where scheduling and execution share a binary.
type MemorySubmitter struct {
	mu   sync.Mutex
	jobs []*JobSpec
}

var _ Submitter = (*MemorySubmitter)(nil)

// NewMemorySubmitter creates an empty in-memory submitter.
func NewMemorySubmitter() *MemorySubmitter {
	return &MemorySubmitter{}
}

// Submit validates and records the job.
func (m *MemorySubmitter) Submit(_ context.Context, spec *JobSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, spec)
	return nil
}

// Jobs returns the submitted jobs in submission order.
func (m *MemorySubmitter) Jobs() []*JobSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*JobSpec, len(m.jobs))
	copy(out, m.jobs)
	return out
}

// Reset discards recorded jobs.
func (m *MemorySubmitter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = nil
}
