// Package retry bounds how the prefetch worker waits out transient,
// retriable pre-flight gates (staging full, fetch buffer full, free space
// low) instead of hot-looping the filesystem stat calls that back them.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// GateBackoff returns a capped exponential backoff suitable for retrying a
// single blocked fetch attempt within one prefetch pass: short initial
// delay, capped max delay, and a bounded total elapsed time so a stuck
// item yields to the next queue item rather than blocking the pass
// forever.
func GateBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	b.Multiplier = 1.8
	return b
}

// PassInterval is how long the prefetch worker sleeps after a full pass
// that fetched nothing, giving encodes time to drain the fetch buffer.
const PassInterval = 30 * time.Second
