package audit

import (
	"context"
	"sync/atomic"

	"github.com/nerrad567/attendai-core/internal/infrastructure/logging"
	"github.com/nerrad567/attendai-core/internal/session"
)

// DefaultQueueSize bounds the entries waiting to be written.
const DefaultQueueSize = 256

// Recorder is a session.Observer that writes events to a Repository from
// a single goroutine. Events that arrive while the queue is full are
// dropped and counted.
type Recorder struct {
	repo    Repository
	queue   chan *Entry
	logger  *logging.Logger
	dropped atomic.Int64
}

// NewRecorder creates a Recorder. Run must be started for entries to be written.
func NewRecorder(repo Repository, logger *logging.Logger, size int) *Recorder {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan *Entry, size),
		logger: logger.With("component", "audit"),
	}
}

// OnSessionEvent implements session.Observer.
func (r *Recorder) OnSessionEvent(e session.Event) {
	entry := FromEvent(e)
	select {
	case r.queue <- entry:
	default:
		r.dropped.Add(1)
		r.logger.Warn("audit queue full, dropping entry", "event_type", entry.EventType)
	}
}

// Dropped returns how many entries were discarded.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes queued entries until ctx is cancelled, then flushes what is
// left and returns.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(e *Entry) {
	if err := r.repo.Create(context.Background(), e); err != nil {
		r.logger.Error("audit write failed", "event_type", e.EventType, "error", err)
	}
}

// FromEvent converts a session event into an audit entry.
func FromEvent(e session.Event) *Entry {
	entry := &Entry{
		ID:         e.ID,
		EventType:  string(e.Type),
		Username:   e.Username,
		Detail:     e.Error,
		DurationMS: e.Duration.Milliseconds(),
		CreatedAt:  e.At,
	}
	if e.User != nil {
		entry.UserID = e.User.ID
		entry.Role = string(e.User.Role)
		if entry.Username == "" {
			entry.Username = e.User.Username
		}
	}
	if entry.Detail == "" && e.Redirect != "" {
		entry.Detail = "redirect " + e.Redirect
	}
	return entry
}
