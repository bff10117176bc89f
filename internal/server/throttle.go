package server

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

const maxThrottleBurst = 32 << 10

// throttledWriter caps write throughput with a token bucket. Waits honor ctx,
// so a disconnected client stops the copy.
type throttledWriter struct {
	ctx     context.Context
	w       io.Writer
	limiter *rate.Limiter
	burst   int
}

func newThrottledWriter(ctx context.Context, w io.Writer, bytesPerSecond int64) io.Writer {
	if bytesPerSecond <= 0 {
		return w
	}
	burst := maxThrottleBurst
	if bytesPerSecond < int64(burst) {
		burst = int(bytesPerSecond)
	}
	return &throttledWriter{
		ctx:     ctx,
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		burst:   burst,
	}
}

func (t *throttledWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > t.burst {
			chunk = chunk[:t.burst]
		}
		if err := t.limiter.WaitN(t.ctx, len(chunk)); err != nil {
			return written, err
		}
		n, err := t.w.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
