package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wodworks/coachkit/pkg/ledger"
)

// Appender is the narrow slice of the ledger store the recorder needs.
type Appender interface {
	Append(ctx context.Context, entry ledger.Entry) error
}

// Record describes one completed request, success or failure.
type Record struct {
	UserID     uuid.UUID
	Feature    string // quota category the request counts against
	Endpoint   string
	Method     string
	StatusCode int
	Latency    time.Duration
	Provider   string // AI provider that served the request, if any
	FundedBy   string
	Error      string
}

// Options tunes recorder buffering.
type Options struct {
	BufferSize     int           // queued records before new ones are dropped
	StorageTimeout time.Duration // per-write timeout, detached from request contexts
}

// Recorder appends usage_record ledger entries off the request path. Record
// never blocks and never returns an error: when the buffer is full or storage
// fails, the record is logged and dropped. Losing a usage row degrades quota
// accounting (under-counting) but must never fail the user-facing request
// that triggered it.
type Recorder struct {
	appender Appender
	log      *slog.Logger
	records  chan Record
	done     chan struct{}
	closed   sync.Once
	wg       sync.WaitGroup
	options  Options
}

// NewRecorder starts the background writer and returns the recorder plus a
// shutdown func that drains buffered records within the context deadline.
func NewRecorder(appender Appender, log *slog.Logger, opts Options) (*Recorder, func(context.Context) error) {
	if appender == nil {
		panic("usage: appender is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = 1024
	}
	if opts.StorageTimeout == 0 {
		opts.StorageTimeout = 5 * time.Second
	}

	r := &Recorder{
		appender: appender,
		log:      log,
		records:  make(chan Record, opts.BufferSize),
		done:     make(chan struct{}),
		options:  opts,
	}

	r.wg.Add(1)
	go r.worker()

	return r, r.Close
}

// Record enqueues a usage record. Non-blocking by contract.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	// Checked on its own first: a buffered send can still succeed after
	// shutdown, landing the record behind the worker's drain unlogged.
	select {
	case <-r.done:
		r.log.WarnContext(ctx, "usage recorder closed, dropping record",
			"user_id", rec.UserID, "endpoint", rec.Endpoint)
		return
	default:
	}

	select {
	case r.records <- rec:
	default:
		// Buffer full. Dropping is the accepted degradation: the request
		// already completed and must not be held hostage by accounting.
		r.log.WarnContext(ctx, "usage buffer full, dropping record",
			"user_id", rec.UserID, "endpoint", rec.Endpoint)
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.records:
			r.store(rec)
		case <-r.done:
			// Drain what's buffered before exiting.
			for {
				select {
				case rec := <-r.records:
					r.store(rec)
				default:
					return
				}
			}
		}
	}
}

// store writes one entry with its own timeout so a slow database can't back
// up the worker behind a cancelled request context.
func (r *Recorder) store(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.options.StorageTimeout)
	defer cancel()

	entry := ledger.Entry{
		ID:      uuid.New(),
		UserID:  rec.UserID,
		Kind:    ledger.KindUsageRecord,
		Feature: rec.Feature,
		Metadata: map[string]any{
			"endpoint":    rec.Endpoint,
			"method":      rec.Method,
			"status_code": rec.StatusCode,
			"latency_ms":  rec.Latency.Milliseconds(),
		},
	}
	if rec.Provider != "" {
		entry.Metadata["provider"] = rec.Provider
	}
	if rec.FundedBy != "" {
		entry.Metadata["funded_by"] = rec.FundedBy
	}
	if rec.Error != "" {
		entry.Metadata["error"] = rec.Error
	}

	if err := r.appender.Append(ctx, entry); err != nil {
		r.log.ErrorContext(ctx, "failed to store usage record",
			"user_id", rec.UserID, "endpoint", rec.Endpoint, "error", err)
	}
}

// Close stops accepting records and waits for the worker to drain, bounded by
// the context deadline. Safe to call more than once.
func (r *Recorder) Close(ctx context.Context) error {
	r.closed.Do(func() { close(r.done) })

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
