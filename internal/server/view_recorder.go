package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultViewIncrementTimeout = 5 * time.Second
	defaultViewQueueDepth       = 4096
)

// viewCounter is the slice of the store the recorder needs.
type viewCounter interface {
	IncrementViewCount(ctx context.Context, id string, at time.Time) (bool, error)
}

// ViewRecorder runs view increments off the request path. Scheduled views
// wait in a bounded queue drained by at most workers goroutines, which exit
// once the queue is empty. Views arriving at a full queue are dropped.
// Failures are logged and never reach the caller.
type ViewRecorder struct {
	counter viewCounter
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	workers  int
	maxQueue int
	wg       sync.WaitGroup

	mu      sync.Mutex
	queue   []viewJob
	running int
	closed  bool

	pending  atomic.Int64
	recorded atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

type viewJob struct {
	ctx context.Context
	id  string
	at  time.Time
}

// ViewStats is a point-in-time snapshot of recorder activity.
type ViewStats struct {
	Pending  int64
	Recorded int64
	Failed   int64
	Dropped  int64
}

func (r *ViewRecorder) Stats() ViewStats {
	if r == nil {
		return ViewStats{}
	}
	return ViewStats{
		Pending:  r.pending.Load(),
		Recorded: r.recorded.Load(),
		Failed:   r.failed.Load(),
		Dropped:  r.dropped.Load(),
	}
}

// NewViewRecorder creates a recorder running at most workers increments at
// once with room for defaultViewQueueDepth waiting views.
func NewViewRecorder(counter viewCounter, workers int, logger *slog.Logger) *ViewRecorder {
	if workers <= 0 {
		workers = defaultViewWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewRecorder{
		counter:  counter,
		logger:   logger,
		timeout:  defaultViewIncrementTimeout,
		now:      func() time.Time { return time.Now().UTC() },
		workers:  workers,
		maxQueue: defaultViewQueueDepth,
	}
}

// Record schedules one increment for id. The increment outlives ctx's
// cancellation but keeps its values for logging.
func (r *ViewRecorder) Record(ctx context.Context, id string) {
	if r == nil || r.counter == nil {
		return
	}
	job := viewJob{ctx: context.WithoutCancel(ctx), id: id, at: r.now()}

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		r.logger.Warn("view dropped after shutdown", "media_id", id)
		return
	case len(r.queue) >= r.maxQueue:
		r.mu.Unlock()
		r.dropped.Add(1)
		r.logger.Warn("view dropped, queue full", "media_id", id, "queue_depth", r.maxQueue)
		return
	}
	r.queue = append(r.queue, job)
	r.wg.Add(1)
	r.pending.Add(1)
	if r.running < r.workers {
		r.running++
		go r.drain()
	}
	r.mu.Unlock()
}

// drain runs queued jobs until the queue is empty. The emptiness check and
// the running decrement share the lock with Record, so no job is stranded.
func (r *ViewRecorder) drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.running--
			r.queue = nil
			r.mu.Unlock()
			return
		}
		job := r.queue[0]
		r.queue[0] = viewJob{}
		r.queue = r.queue[1:]
		r.mu.Unlock()

		r.increment(job)
		r.pending.Add(-1)
		r.wg.Done()
	}
}

func (r *ViewRecorder) increment(job viewJob) {
	ctx, cancel := context.WithTimeout(job.ctx, r.timeout)
	defer cancel()

	found, err := r.counter.IncrementViewCount(ctx, job.id, job.at)
	fields := []any{"media_id", job.id}
	if requestID := requestIDFromContext(job.ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	switch {
	case err != nil:
		r.failed.Add(1)
		r.logger.Warn("view count update failed", append(fields, "error", err)...)
	case !found:
		// Deleted between serving and counting.
		r.logger.Debug("view count target missing", fields...)
	default:
		r.recorded.Add(1)
	}
}

// Wait blocks until every scheduled increment has finished.
func (r *ViewRecorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

// Close stops accepting new increments and waits for pending ones or ctx.
func (r *ViewRecorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
