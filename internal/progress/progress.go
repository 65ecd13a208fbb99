// Package progress tracks batch ingestion progress and fans snapshots out to
// observers. Delivery is best effort: an observer that fails or panics is
// logged and never affects the batch.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultNotifyTimeout bounds a single observer notification.
const DefaultNotifyTimeout = 5 * time.Second

// DocumentError records a document that failed in a batch.
type DocumentError struct {
	Document string `json:"document"`
	Message  string `json:"message"`
}

// Snapshot is the state of a batch at one point in time. Seq increases with
// every change so consumers can drop snapshots that arrive out of order.
type Snapshot struct {
	JobID           string          `json:"job_id"`
	Seq             uint64          `json:"seq"`
	Total           int             `json:"total"`
	Ingested        int             `json:"ingested"`
	Failed          int             `json:"failed"`
	CurrentDocument string          `json:"current_document,omitempty"`
	Errors          []DocumentError `json:"errors"`
	Finished        bool            `json:"finished"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Done returns how many documents have completed either way.
func (s Snapshot) Done() int {
	return s.Ingested + s.Failed
}

// Observer receives snapshots.
type Observer interface {
	Notify(ctx context.Context, s Snapshot) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, s Snapshot) error

// Notify calls f.
func (f ObserverFunc) Notify(ctx context.Context, s Snapshot) error {
	return f(ctx, s)
}

// Reporter holds the mutable counters of one batch and broadcasts every change.
type Reporter struct {
	mu        sync.Mutex
	snap      Snapshot
	observers []Observer
	timeout   time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup
	nextJobID string
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithObservers adds observers.
func WithObservers(obs ...Observer) Option {
	return func(r *Reporter) {
		for _, o := range obs {
			if o != nil {
				r.observers = append(r.observers, o)
			}
		}
	}
}

// WithNotifyTimeout sets the per-notification deadline.
func WithNotifyTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger used for observer failures.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithJobID fixes the id the next Start assigns, so a caller can hand the id
// out before the batch begins.
func WithJobID(id string) Option {
	return func(r *Reporter) { r.nextJobID = id }
}

// NewReporter creates a reporter with no job started.
func NewReporter(opts ...Option) *Reporter {
	r := &Reporter{
		timeout: DefaultNotifyTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Errors = []DocumentError{}
	return r
}

// Start begins a new job of total documents and returns its id.
func (r *Reporter) Start(total int) string {
	r.mu.Lock()
	seq := r.snap.Seq
	id := r.nextJobID
	r.nextJobID = ""
	if id == "" {
		id = uuid.NewString()
	}
	r.snap = Snapshot{
		JobID:  id,
		Seq:    seq,
		Total:  total,
		Errors: []DocumentError{},
	}
	r.publishLocked()
	r.mu.Unlock()
	return id
}

// StartDocument marks name as the document being processed.
func (r *Reporter) StartDocument(name string) {
	r.mu.Lock()
	r.snap.CurrentDocument = name
	r.publishLocked()
	r.mu.Unlock()
}

// CompleteDocument records the outcome of one document. errMsg is kept only
// when ok is false.
func (r *Reporter) CompleteDocument(name string, ok bool, errMsg string) {
	r.mu.Lock()
	if ok {
		r.snap.Ingested++
	} else {
		r.snap.Failed++
		r.snap.Errors = append(r.snap.Errors, DocumentError{Document: name, Message: errMsg})
	}
	if r.snap.CurrentDocument == name {
		r.snap.CurrentDocument = ""
	}
	r.publishLocked()
	r.mu.Unlock()
}

// Finish marks the job finished.
func (r *Reporter) Finish() {
	r.mu.Lock()
	r.snap.Finished = true
	r.snap.CurrentDocument = ""
	r.publishLocked()
	r.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

// Wait blocks until every dispatched notification has returned.
func (r *Reporter) Wait() {
	r.wg.Wait()
}

func (r *Reporter) copyLocked() Snapshot {
	s := r.snap
	s.Errors = append([]DocumentError(nil), r.snap.Errors...)
	if s.Errors == nil {
		s.Errors = []DocumentError{}
	}
	return s
}

func (r *Reporter) publishLocked() {
	r.snap.Seq++
	r.snap.UpdatedAt = time.Now().UTC()
	if len(r.observers) == 0 {
		return
	}
	s := r.copyLocked()
	for _, o := range r.observers {
		r.wg.Add(1)
		go r.dispatch(o, s)
	}
}

func (r *Reporter) dispatch(o Observer, s Snapshot) {
	defer r.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("progress observer panicked",
				zap.String("observer", fmt.Sprintf("%T", o)),
				zap.String("job_id", s.JobID),
				zap.Any("panic", p))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := o.Notify(ctx, s); err != nil {
		r.logger.Warn("progress observer failed",
			zap.String("observer", fmt.Sprintf("%T", o)),
			zap.String("job_id", s.JobID),
			zap.Error(err))
	}
}
