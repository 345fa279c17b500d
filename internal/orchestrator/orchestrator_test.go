package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/indexer"
	"github.com/archivetools/indexd/internal/queue"
	"github.com/archivetools/indexd/internal/storage"
)

func tid(b byte) storage.ContentID {
	var id storage.ContentID
	for i := range id {
		id[i] = b
	}
	return id
}

// stubIndexer lets tests script the presence filter.
type stubIndexer struct {
	name   string
	filter func(ids []storage.ContentID) []storage.ContentID
	err    error
}

func (s *stubIndexer) Name() string { return s.name }

func (s *stubIndexer) Filter(_ context.Context, ids []storage.ContentID) ([]storage.ContentID, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.filter == nil {
		return ids, nil
	}
	return s.filter(ids), nil
}

func (s *stubIndexer) Run(context.Context, []storage.ContentID, indexer.Policy) error {
	return nil
}

func newRegistry(t *testing.T, indexers ...indexer.Indexer) *indexer.Registry {
	t.Helper()
	reg := indexer.NewRegistry()
	for _, ix := range indexers {
		require.NoError(t, reg.Add(ix))
	}
	return reg
}

// keepHighNibble returns a filter keeping ids whose first byte has the
// given high nibble.
func keepHighNibble(nibble byte) func([]storage.ContentID) []storage.ContentID {
	return func(ids []storage.ContentID) []storage.ContentID {
		var out []storage.ContentID
		for _, id := range ids {
			if id[0]>>4 == nibble {
				out = append(out, id)
			}
		}
		return out
	}
}

func TestNew_UnknownIndexerIsFatal(t *testing.T) {
	reg := newRegistry(t, &stubIndexer{name: "mimetype"})

	_, err := New(reg, queue.NewMemorySubmitter(), map[string]TaskConfig{
		"nonexistent": {BatchSize: 10},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.Newf(errors.ErrCodeUnknownIndexer, ""))
	assert.True(t, errors.IsFatal(err))
}

func TestNew_RejectsNonPositiveBatchSize(t *testing.T) {
	reg := newRegistry(t, &stubIndexer{name: "mimetype"})

	_, err := New(reg, queue.NewMemorySubmitter(), map[string]TaskConfig{
		"mimetype": {BatchSize: 0},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.Newf(errors.ErrCodeConfigInvalid, ""))
}

func TestNew_RequiresTasks(t *testing.T) {
	reg := newRegistry(t)
	_, err := New(reg, queue.NewMemorySubmitter(), nil)
	require.Error(t, err)
}

func TestRun_FilteredToOneJob(t *testing.T) {
	// Given ids [0x12, 0x2a, 0x2b, 0x2c] and a presence filter keeping
	// only the id starting with nibble 1
	ids := []storage.ContentID{tid(0x12), tid(0x2a), tid(0x2b), tid(0x2c)}
	reg := newRegistry(t, &stubIndexer{name: "idx1", filter: keepHighNibble(0x1)})
	sub := queue.NewMemorySubmitter()

	o, err := New(reg, sub, map[string]TaskConfig{
		"idx1": {BatchSize: 2, CheckPresence: true},
	})
	require.NoError(t, err)

	// When running the batch
	n, err := o.Run(context.Background(), ids)
	require.NoError(t, err)

	// Then exactly one ignore-dups job with the single filtered id
	assert.Equal(t, 1, n)
	jobs := sub.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "idx1", jobs[0].Task)
	assert.Equal(t, []storage.ContentID{tid(0x12)}, jobs[0].IDs)
	assert.Equal(t, indexer.PolicyIgnoreDups, jobs[0].Policy)
}

func TestRun_FilteredToTwoBatches(t *testing.T) {
	// Given the same input and a filter keeping everything
	ids := []storage.ContentID{tid(0x12), tid(0x2a), tid(0x2b), tid(0x2c)}
	reg := newRegistry(t, &stubIndexer{name: "idx2"})
	sub := queue.NewMemorySubmitter()

	o, err := New(reg, sub, map[string]TaskConfig{
		"idx2": {BatchSize: 2, CheckPresence: true},
	})
	require.NoError(t, err)

	n, err := o.Run(context.Background(), ids)
	require.NoError(t, err)

	// Then two size-2 ignore-dups jobs in partition order
	assert.Equal(t, 2, n)
	jobs := sub.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, []storage.ContentID{tid(0x12), tid(0x2a)}, jobs[0].IDs)
	assert.Equal(t, []storage.ContentID{tid(0x2b), tid(0x2c)}, jobs[1].IDs)
	for _, job := range jobs {
		assert.Equal(t, indexer.PolicyIgnoreDups, job.Policy)
	}
}

func TestRun_UnfilteredUsesUpdateDups(t *testing.T) {
	// With check_presence disabled the full input is batched and jobs
	// carry update-dups.
	ids := []storage.ContentID{tid(0x12), tid(0x2a), tid(0x2b), tid(0x2c)}
	reg := newRegistry(t, &stubIndexer{name: "idx3", filter: keepHighNibble(0x1)})
	sub := queue.NewMemorySubmitter()

	o, err := New(reg, sub, map[string]TaskConfig{
		"idx3": {BatchSize: 3, CheckPresence: false},
	})
	require.NoError(t, err)

	n, err := o.Run(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	jobs := sub.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, []storage.ContentID{tid(0x12), tid(0x2a), tid(0x2b)}, jobs[0].IDs)
	assert.Equal(t, []storage.ContentID{tid(0x2c)}, jobs[1].IDs)
	for _, job := range jobs {
		assert.Equal(t, indexer.PolicyUpdateDups, job.Policy)
	}
}

func TestRun_EmptyFilterSkipsIndexer(t *testing.T) {
	ids := []storage.ContentID{tid(0x2a), tid(0x2b)}
	reg := newRegistry(t, &stubIndexer{name: "idx1", filter: keepHighNibble(0x1)})
	sub := queue.NewMemorySubmitter()

	o, err := New(reg, sub, map[string]TaskConfig{
		"idx1": {BatchSize: 2, CheckPresence: true},
	})
	require.NoError(t, err)

	n, err := o.Run(context.Background(), ids)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sub.Jobs())
}

func TestRun_EmptyInputIsNoop(t *testing.T) {
	reg := newRegistry(t, &stubIndexer{name: "idx1"})
	sub := queue.NewMemorySubmitter()

	o, err := New(reg, sub, map[string]TaskConfig{
		"idx1": {BatchSize: 2, CheckPresence: true},
	})
	require.NoError(t, err)

	n, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sub.Jobs())
}

func TestRun_BatchingPreservesOrderAndCoverage(t *testing.T) {
	var ids []storage.ContentID
	for b := byte(1); b <= 25; b++ {
		ids = append(ids, tid(b))
	}
	reg := newRegistry(t, &stubIndexer{name: "idx"})
	sub := queue.NewMemorySubmitter()

	o, err := New(reg, sub, map[string]TaskConfig{
		"idx": {BatchSize: 7},
	})
	require.NoError(t, err)

	n, err := o.Run(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// Concatenation of batches equals the input in original order; every
	// batch is full except possibly the last.
	jobs := sub.Jobs()
	var flat []storage.ContentID
	for i, job := range jobs {
		if i < len(jobs)-1 {
			assert.Len(t, job.IDs, 7)
		} else {
			assert.Len(t, job.IDs, 4)
		}
		flat = append(flat, job.IDs...)
	}
	assert.Equal(t, ids, flat)
}

func TestRun_AllConfiguredTasksCovered(t *testing.T) {
	ids := []storage.ContentID{tid(0x01), tid(0x02)}
	reg := newRegistry(t,
		&stubIndexer{name: "mimetype"},
		&stubIndexer{name: "language"},
		&stubIndexer{name: "ctags"},
	)
	sub := queue.NewMemorySubmitter()

	o, err := New(reg, sub, map[string]TaskConfig{
		"mimetype": {BatchSize: 10},
		"language": {BatchSize: 10},
		"ctags":    {BatchSize: 10},
	})
	require.NoError(t, err)

	n, err := o.Run(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	seen := make(map[string]bool)
	for _, job := range sub.Jobs() {
		seen[job.Task] = true
	}
	assert.Equal(t, map[string]bool{"mimetype": true, "language": true, "ctags": true}, seen)
}

func TestRun_FilterErrorPropagates(t *testing.T) {
	ids := []storage.ContentID{tid(0x01)}
	reg := newRegistry(t, &stubIndexer{name: "idx", err: fmt.Errorf("db gone")})
	sub := queue.NewMemorySubmitter()

	o, err := New(reg, sub, map[string]TaskConfig{
		"idx": {BatchSize: 2, CheckPresence: true},
	})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), ids)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.Newf(errors.ErrCodeFilterFailed, ""))
	assert.Empty(t, sub.Jobs())
}

// failAfter accepts n jobs then rejects everything.
type failAfter struct {
	inner *queue.MemorySubmitter
	n     int
	count int
}

func (f *failAfter) Submit(ctx context.Context, spec *queue.JobSpec) error {
	f.count++
	if f.count > f.n {
		return fmt.Errorf("broker unavailable")
	}
	return f.inner.Submit(ctx, spec)
}

func TestRun_SubmissionFailureKeepsEarlierJobs(t *testing.T) {
	var ids []storage.ContentID
	for b := byte(1); b <= 6; b++ {
		ids = append(ids, tid(b))
	}
	reg := newRegistry(t, &stubIndexer{name: "idx"})
	mem := queue.NewMemorySubmitter()
	sub := &failAfter{inner: mem, n: 2}

	o, err := New(reg, sub, map[string]TaskConfig{
		"idx": {BatchSize: 2},
	})
	require.NoError(t, err)

	// The third submission fails; the first two stand.
	n, err := o.Run(context.Background(), ids)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.Newf(errors.ErrCodeSubmission, ""))
	assert.Equal(t, 2, n)
	assert.Len(t, mem.Jobs(), 2)
}

func TestPartition(t *testing.T) {
	ids := []storage.ContentID{tid(1), tid(2), tid(3), tid(4), tid(5)}

	chunks := partition(ids, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, []storage.ContentID{tid(1), tid(2)}, chunks[0])
	assert.Equal(t, []storage.ContentID{tid(3), tid(4)}, chunks[1])
	assert.Equal(t, []storage.ContentID{tid(5)}, chunks[2])

	assert.Len(t, partition(ids, 10), 1)
	assert.Nil(t, partition(nil, 3))
}
