package server

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingCounter struct {
	mu      sync.Mutex
	counts  map[string]int
	active  atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
	failErr error
	// release, when set, holds every increment until it is closed.
	release chan struct{}
}

func (c *countingCounter) IncrementViewCount(ctx context.Context, id string, at time.Time) (bool, error) {
	current := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		peak := c.peak.Load()
		if current <= peak || c.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.release != nil {
		<-c.release
	}
	if c.failErr != nil {
		return false, c.failErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[id]++
	return true, nil
}

func TestViewRecorderBoundsConcurrency(t *testing.T) {
	counter := &countingCounter{delay: 5 * time.Millisecond}
	recorder := NewViewRecorder(counter, 2, discardLogger())

	for i := 0; i < 20; i++ {
		recorder.Record(context.Background(), "md-0001")
	}
	recorder.Wait()

	if got := counter.counts["md-0001"]; got != 20 {
		t.Fatalf("expected 20 increments, got %d", got)
	}
	if peak := counter.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent increments, saw %d", peak)
	}
	if stats := recorder.Stats(); stats != (ViewStats{Recorded: 20}) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestViewRecorderOutlivesRequestContext(t *testing.T) {
	counter := &countingCounter{delay: 10 * time.Millisecond}
	recorder := NewViewRecorder(counter, 1, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	recorder.Record(ctx, "md-0002")
	cancel()
	recorder.Wait()

	if got := counter.counts["md-0002"]; got != 1 {
		t.Fatalf("expected increment despite cancelled request, got %d", got)
	}
}

func TestViewRecorderSwallowsFailures(t *testing.T) {
	counter := &countingCounter{failErr: errors.New("db locked")}
	recorder := NewViewRecorder(counter, 4, discardLogger())

	recorder.Record(context.Background(), "md-0003")
	if err := recorder.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if stats := recorder.Stats(); stats != (ViewStats{Failed: 1}) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestViewRecorderCloseDrainsAndRejects(t *testing.T) {
	counter := &countingCounter{delay: 5 * time.Millisecond}
	recorder := NewViewRecorder(counter, 1, discardLogger())
	for i := 0; i < 5; i++ {
		recorder.Record(context.Background(), "md-0004")
	}

	if err := recorder.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := counter.counts["md-0004"]; got != 5 {
		t.Fatalf("expected pending increments drained, got %d", got)
	}

	recorder.Record(context.Background(), "md-0004")
	recorder.Wait()
	if got := counter.counts["md-0004"]; got != 5 {
		t.Fatalf("expected record after close to be dropped, got %d", got)
	}
}

func TestViewRecorderCloseHonorsDeadline(t *testing.T) {
	counter := &countingCounter{delay: 200 * time.Millisecond}
	recorder := NewViewRecorder(counter, 1, discardLogger())
	recorder.Record(context.Background(), "md-0005")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := recorder.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	recorder.Wait()
}

func TestViewRecorderQueueBoundsGoroutinesAndDropsOverflow(t *testing.T) {
	counter := &countingCounter{release: make(chan struct{})}
	recorder := NewViewRecorder(counter, 2, discardLogger())
	recorder.maxQueue = 8
	baseline := runtime.NumGoroutine()

	recorder.Record(context.Background(), "md-0006")
	recorder.Record(context.Background(), "md-0006")
	deadline := time.Now().Add(2 * time.Second)
	for counter.active.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("workers never picked up the first views")
		}
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 500; i++ {
		recorder.Record(context.Background(), "md-0006")
	}

	recorder.mu.Lock()
	running, queued := recorder.running, len(recorder.queue)
	recorder.mu.Unlock()
	if running != 2 || queued != 8 {
		t.Fatalf("expected 2 workers and 8 queued views, got %d and %d", running, queued)
	}
	if grown := runtime.NumGoroutine() - baseline; grown > 2 {
		t.Fatalf("expected at most 2 recorder goroutines, goroutine count grew by %d", grown)
	}
	if stats := recorder.Stats(); stats != (ViewStats{Pending: 10, Dropped: 492}) {
		t.Fatalf("unexpected stats under backpressure %+v", stats)
	}

	close(counter.release)
	recorder.Wait()
	if got := counter.counts["md-0006"]; got != 10 {
		t.Fatalf("expected every accepted view counted, got %d", got)
	}
	if stats := recorder.Stats(); stats != (ViewStats{Recorded: 10, Dropped: 492}) {
		t.Fatalf("unexpected stats after drain %+v", stats)
	}
}
