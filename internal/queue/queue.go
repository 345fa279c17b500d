// Package queue carries indexing jobs from the orchestrator to worker
// processes. Submission is fire-and-forget: the orchestrator never waits
// for job completion, only for broker acceptance.
package queue

import (
	"context"
	"encoding/json"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/indexer"
	"github.com/archivetools/indexd/internal/storage"
)

// JobSpec is one unit of indexing work: a task name, the content batch,
// and the conflict policy the worker must index under.
type JobSpec struct {
	Task   string              `json:"task"`
	IDs    []storage.ContentID `json:"ids"`
	Policy indexer.Policy      `json:"policy"`
}

// Validate checks the spec is dispatchable. An empty batch or an unknown
// policy is a submitter bug, not a transient condition.
func (j *JobSpec) Validate() error {
	if j.Task == "" {
		return errors.Newf(errors.ErrCodeJobInvalid, "job has no task name")
	}
	if len(j.IDs) == 0 {
		return errors.Newf(errors.ErrCodeJobInvalid, "job %q has an empty batch", j.Task)
	}
	if !j.Policy.Valid() {
		return errors.Newf(errors.ErrCodeJobInvalid, "job %q has invalid policy %q", j.Task, j.Policy)
	}
	return nil
}

// Encode serializes the spec for the wire.
func (j *JobSpec) Encode() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, errors.New(errors.ErrCodeJobInvalid, "cannot encode job "+j.Task, err)
	}
	return data, nil
}

// DecodeJobSpec deserializes a wire payload into a validated spec.
func DecodeJobSpec(data []byte) (*JobSpec, error) {
	var spec JobSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, errors.New(errors.ErrCodeJobInvalid, "cannot decode job payload", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Submitter accepts jobs for asynchronous execution.
type Submitter interface {
	// Submit hands the job to the broker. A nil error means the broker
	// accepted it, not that it ran.
	Submit(ctx context.Context, spec *JobSpec) error
}
