package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowRecordAndTotals(t *testing.T) {
	now := time.Now()
	w := newWindow(10*time.Second, 10, now)

	w.recordSuccess()
	w.recordSuccess()
	w.recordFailure()
	w.recordTimeout()
	w.recordFallback()

	totals := w.totals()
	assert.Equal(t, 2, totals.Successes)
	assert.Equal(t, 1, totals.Failures)
	assert.Equal(t, 1, totals.Timeouts)
	assert.Equal(t, 1, totals.Fallbacks)
	assert.Equal(t, 4, totals.Completed())
}

func TestWindowRotationExpiresOldBuckets(t *testing.T) {
	now := time.Now()
	w := newWindow(10*time.Second, 10, now)

	w.recordFailure()
	w.recordFailure()

	// Advance three buckets; old counts survive
	w.rotate(now.Add(3 * time.Second))
	w.recordSuccess()
	totals := w.totals()
	assert.Equal(t, 2, totals.Failures)
	assert.Equal(t, 1, totals.Successes)

	// Advance past the full window span; everything expires
	w.rotate(now.Add(14 * time.Second))
	totals = w.totals()
	assert.Equal(t, 0, totals.Completed())
}

func TestWindowRotationWrapsCursor(t *testing.T) {
	now := time.Now()
	w := newWindow(10*time.Second, 10, now)

	// Fill one count per bucket, rotating between each
	for i := 0; i < 10; i++ {
		w.rotate(now.Add(time.Duration(i) * time.Second))
		w.recordSuccess()
	}
	assert.Equal(t, 10, w.totals().Successes)

	// One more rotation overwrites the oldest bucket
	w.rotate(now.Add(10 * time.Second))
	w.recordSuccess()
	assert.Equal(t, 10, w.totals().Successes)
}

func TestWindowRotateWithinSameBucketIsNoop(t *testing.T) {
	now := time.Now()
	w := newWindow(10*time.Second, 10, now)

	w.recordSuccess()
	w.rotate(now.Add(500 * time.Millisecond))
	assert.Equal(t, 1, w.totals().Successes)
}

func TestWindowReset(t *testing.T) {
	now := time.Now()
	w := newWindow(10*time.Second, 10, now)

	w.recordSuccess()
	w.recordFailure()
	w.reset(now.Add(time.Second))

	assert.Equal(t, Stats{}, w.totals())
}
