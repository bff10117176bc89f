package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"mediasrv/internal/store"
)

// perfBudget is one timed workload. setup returns the operation run once
// per round; the mean round time must stay under the budget.
type perfBudget struct {
	name     string
	rounds   int
	perRound time.Duration
	setup    func(t *testing.T) func(ctx context.Context, round int) error
}

func (b perfBudget) envPrefix() string {
	return "MEDIASRV_PERF_" + strings.ToUpper(b.name)
}

func TestPerformanceBudgets(t *testing.T) {
	if strings.TrimSpace(os.Getenv("MEDIASRV_PERF_ENFORCE")) != "1" {
		t.Skip("set MEDIASRV_PERF_ENFORCE=1 to run performance budget checks")
	}

	const rangeBlobSize = 4 << 20
	const rangeSpan = 64 << 10

	budgets := []perfBudget{
		{
			name: "list", rounds: 160, perRound: 20 * time.Millisecond,
			setup: func(t *testing.T) func(context.Context, int) error {
				env := newPerfMediaEnv(t, 900, 64)
				filter := store.ListFilter{MediaTypePrefix: "audio/", Limit: 100}
				return func(ctx context.Context, _ int) error {
					items, err := env.srv.media.List(ctx, filter)
					if err == nil && len(items) == 0 {
						err = fmt.Errorf("filtered list is empty")
					}
					return err
				}
			},
		},
		{
			name: "range", rounds: 200, perRound: 5 * time.Millisecond,
			setup: func(t *testing.T) func(context.Context, int) error {
				env := newPerfMediaEnv(t, 2, rangeBlobSize)
				return func(_ context.Context, round int) error {
					start := (round * rangeSpan) % (rangeBlobSize - rangeSpan)
					w := env.fetch(env.media[round%2].ID, fmt.Sprintf("bytes=%d-%d", start, start+rangeSpan-1))
					if w.Code != http.StatusPartialContent {
						return fmt.Errorf("status %d", w.Code)
					}
					return nil
				}
			},
		},
		{
			name: "upload", rounds: 40, perRound: 60 * time.Millisecond,
			setup: func(t *testing.T) func(context.Context, int) error {
				env := newPerfMediaEnv(t, 0, 0)
				return func(ctx context.Context, round int) error {
					_, err := env.srv.media.Upload(ctx, UploadInput{
						Title:             fmt.Sprintf("Upload budget %d", round),
						Filename:          fmt.Sprintf("budget-%d.mp4", round),
						DeclaredMediaType: "video/mp4",
					}, bytes.NewReader(perfContent(round, 256<<10)))
					return err
				}
			},
		},
	}

	for _, b := range budgets {
		t.Run(b.name, func(t *testing.T) {
			rounds := positiveIntFromEnv(b.envPrefix()+"_ROUNDS", b.rounds)
			limit := budgetFromEnv(b.envPrefix()+"_MAX_PER_OP", b.perRound)
			op := b.setup(t)
			ctx := context.Background()

			started := time.Now()
			for i := range rounds {
				if err := op(ctx, i); err != nil {
					t.Fatalf("round %d: %v", i, err)
				}
			}
			elapsed := time.Since(started)

			perRound := elapsed / time.Duration(rounds)
			t.Logf("%s: rounds=%d total=%s per_round=%s budget=%s", b.name, rounds, elapsed, perRound, limit)
			if perRound > limit {
				t.Fatalf("%s over budget: per_round=%s > %s", b.name, perRound, limit)
			}
		})
	}
}

func positiveIntFromEnv(key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n > 0 {
		return n
	}
	return def
}

// budgetFromEnv accepts a Go duration or whole milliseconds.
func budgetFromEnv(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
