package util

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// rateLimitedWriter throttles writes to a token-bucket limiter sized in
// bytes/sec, so a single fetch cannot saturate the link the rest of the
// pipeline depends on.
type rateLimitedWriter struct {
	w   io.Writer
	lim *rate.Limiter
}

// NewRateLimitedWriter wraps w so writes drain no faster than maxMBps
// megabytes/sec on average. Burst is capped at one second's worth of
// bytes, which is generous enough for ffmpeg-sized buffers without
// letting a burst defeat the limit over any real interval.
func NewRateLimitedWriter(w io.Writer, maxMBps float64) io.Writer {
	bytesPerSec := maxMBps * 1024 * 1024
	return &rateLimitedWriter{
		w:   w,
		lim: rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec)),
	}
}

func (r *rateLimitedWriter) Write(p []byte) (int, error) {
	total := 0
	ctx := context.Background()
	for len(p) > 0 {
		n := len(p)
		if burst := r.lim.Burst(); n > burst {
			n = burst
		}
		if err := r.lim.WaitN(ctx, n); err != nil {
			return total, err
		}
		written, err := r.w.Write(p[:n])
		total += written
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}
