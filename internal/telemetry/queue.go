package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/logger"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/metrics"
)

const (
	DefaultFlushInterval = 5 * time.Second
	DefaultMaxQueue      = 1000
	flushTimeout         = 10 * time.Second
)

// Sink receives flushed batches in one bulk write.
type Sink interface {
	WriteBatch(ctx context.Context, events []Event) error
}

// Options configure a Queue. Zero values fall back to the defaults.
type Options struct {
	FlushInterval time.Duration
	MaxQueue      int
	Clock         Clock
	// Path is stamped on events that carry no originating path.
	Path string
}

// Queue buffers events in memory and flushes them to a Sink in batches.
//
// The flush loop starts lazily on the first Record (or explicitly via Start) and
// runs until Stop. Critical events trigger an immediate out-of-band flush. A batch
// that fails to send is put back at the front of the queue; the queue is bounded
// and drops its oldest events when full.
type Queue struct {
	sink     Sink
	interval time.Duration
	max      int
	clock    Clock
	path     string

	mu      sync.Mutex
	pending []Event
	running bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}

	// sendMu serialises sends so batches reach the sink in order.
	sendMu   sync.Mutex
	inflight sync.WaitGroup
}

func NewQueue(sink Sink, opts Options) *Queue {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.MaxQueue <= 0 {
		opts.MaxQueue = DefaultMaxQueue
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &Queue{
		sink:     sink,
		interval: opts.FlushInterval,
		max:      opts.MaxQueue,
		clock:    opts.Clock,
		path:     opts.Path,
	}
}

// Record enqueues ev. It never blocks on the sink.
func (q *Queue) Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = q.clock.Now().UTC()
	}
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}
	if ev.Path == "" {
		ev.Path = q.path
	}
	logEvent(ev)

	q.mu.Lock()
	q.pending = append(q.pending, ev)
	q.trimLocked()
	lazyStart := !q.running && !q.stopped
	q.mu.Unlock()

	if lazyStart {
		q.Start()
	}
	if ev.Severity == SeverityCritical {
		q.inflight.Add(1)
		go func() {
			defer q.inflight.Done()
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			defer cancel()
			if err := q.Flush(ctx); err != nil {
				logger.Warnf("telemetry: immediate flush for critical event failed: %v", err)
			}
		}()
	}
}

// Start launches the periodic flush loop. Calling it on a running or stopped queue is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.running || q.stopped {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.done = make(chan struct{})
	ticker := q.clock.NewTicker(q.interval)
	stopCh, done := q.stopCh, q.done
	q.mu.Unlock()

	go q.loop(ticker, stopCh, done)
}

func (q *Queue) loop(ticker Ticker, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			if err := q.Flush(ctx); err != nil {
				logger.Warnf("telemetry: periodic flush failed: %v", err)
			}
			cancel()
		case <-stopCh:
			return
		}
	}
}

// Stop halts the flush loop, waits for out-of-band flushes and sends whatever is left.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	var done chan struct{}
	if q.running {
		close(q.stopCh)
		q.running = false
		done = q.done
	}
	q.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q.inflight.Wait()
	return q.Flush(ctx)
}

// Flush swaps the pending events for an empty queue and sends them as one batch.
// Events recorded while the send is in flight go to the next batch.
func (q *Queue) Flush(ctx context.Context) error {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()

	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := q.sink.WriteBatch(ctx, batch); err != nil {
		metrics.TelemetryFlushFailures.Inc()
		q.mu.Lock()
		q.pending = append(batch, q.pending...)
		q.trimLocked()
		q.mu.Unlock()
		return fmt.Errorf("telemetry write batch of %d: %w", len(batch), err)
	}
	metrics.TelemetryFlushed.Add(float64(len(batch)))
	return nil
}

// Pending reports how many events wait for the next flush.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) trimLocked() {
	over := len(q.pending) - q.max
	if over <= 0 {
		return
	}
	metrics.TelemetryDropped.Add(float64(over))
	q.pending = append([]Event(nil), q.pending[over:]...)
}

func logEvent(ev Event) {
	var e *zerolog.Event
	switch ev.Severity {
	case SeverityWarning:
		e = logger.WarnEvent()
	case SeverityError, SeverityCritical:
		e = logger.ErrorEvent()
	default:
		e = logger.InfoEvent()
	}
	e.Str("component", "telemetry").
		Str("event_type", ev.Type).
		Str("severity", string(ev.Severity)).
		Str("user_id", ev.UserID).
		Fields(ev.Context).
		Msg(ev.Message)
}
