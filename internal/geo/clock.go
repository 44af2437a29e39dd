package geo

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Clock drives throttle sleeps and retry waits.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	NewTimer() backoff.Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
func (SystemClock) NewTimer() backoff.Timer {
	return &wallTimer{}
}

type wallTimer struct {
	timer *time.Timer
}

func (t *wallTimer) C() <-chan time.Time {
	return t.timer.C
}

func (t *wallTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *wallTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

// linearBackOff waits base × n before the n-th retry.
type linearBackOff struct {
	base time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.base * time.Duration(b.n)
}

func (b *linearBackOff) Reset() { b.n = 0 }

// retryPolicy allows attempts calls in total.
func retryPolicy(base time.Duration, attempts int) backoff.BackOff {
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(&linearBackOff{base: base}, uint64(attempts-1))
}
