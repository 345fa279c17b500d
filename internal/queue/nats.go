package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/archivetools/indexd/internal/errors"
)

// DefaultSubjectPrefix is the subject namespace indexing jobs publish under.
// A job for task "mimetype" travels on "indexer.tasks.mimetype".
const DefaultSubjectPrefix = "indexer.tasks"

// NATSSubmitter publishes jobs to a NATS subject per task.
type NATSSubmitter struct {
	nc     *nats.Conn
	prefix string
	owned  bool
}

var _ Submitter = (*NATSSubmitter)(nil)

// Connect dials the broker and returns a submitter owning the connection.
func Connect(url string, prefix string) (*NATSSubmitter, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, errors.New(errors.ErrCodeQueueConnect,
			"cannot connect to queue at "+url, err)
	}
	slog.Info("queue_connected", slog.String("url", url))
	s := NewNATSSubmitter(nc, prefix)
	s.owned = true
	return s, nil
}

// NewNATSSubmitter wraps an existing connection. The caller keeps ownership
// of the connection's lifecycle.
func NewNATSSubmitter(nc *nats.Conn, prefix string) *NATSSubmitter {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSubmitter{nc: nc, prefix: prefix}
}

// Subject returns the subject jobs for task travel on.
func (s *NATSSubmitter) Subject(task string) string {
	return s.prefix + "." + task
}

// Submit publishes the job and flushes it to the broker. Returning nil
// means the broker buffered the message; execution is not awaited.
func (s *NATSSubmitter) Submit(ctx context.Context, spec *JobSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	payload, err := spec.Encode()
	if err != nil {
		return err
	}

	subject := s.Subject(spec.Task)
	if err := s.nc.Publish(subject, payload); err != nil {
		return errors.New(errors.ErrCodeSubmission,
			"queue rejected job for "+spec.Task, err).
			WithDetail("subject", subject)
	}
	if err := s.nc.FlushWithContext(ctx); err != nil {
		return errors.New(errors.ErrCodeSubmission,
			"queue flush failed for "+spec.Task, err).
			WithDetail("subject", subject)
	}

	slog.Debug("job_submitted",
		slog.String("task", spec.Task),
		slog.String("subject", subject),
		slog.Int("batch_size", len(spec.IDs)),
		slog.String("policy", string(spec.Policy)))
	return nil
}

// Close releases the connection when the submitter owns it.
func (s *NATSSubmitter) Close() {
	if s.owned && s.nc != nil {
		s.nc.Close()
	}
}
