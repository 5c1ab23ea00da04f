package gateway

import "time"

// Stats holds the rolling-window counters for a breaker
type Stats struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Timeouts  int `json:"timeouts"`
	Fallbacks int `json:"fallbacks"`
}

// Completed returns the number of calls that actually ran the action
func (s Stats) Completed() int {
	return s.Successes + s.Failures + s.Timeouts
}

type windowBucket struct {
	successes int
	failures  int
	timeouts  int
	fallbacks int
}

// window aggregates outcomes over a fixed time span split into buckets.
// Buckets rotate on the clock; counts older than one full window expire.
// Not safe for concurrent use; the owning breaker serializes access.
type window struct {
	bucketDur   time.Duration
	buckets     []windowBucket
	cursor      int
	cursorStart time.Time
}

func newWindow(size time.Duration, bucketCount int, now time.Time) *window {
	if bucketCount < 1 {
		bucketCount = 1
	}
	return &window{
		bucketDur:   size / time.Duration(bucketCount),
		buckets:     make([]windowBucket, bucketCount),
		cursorStart: now,
	}
}

// rotate advances the cursor to the bucket covering now, zeroing any
// buckets skipped along the way. A gap longer than the whole window
// clears everything.
func (w *window) rotate(now time.Time) {
	if now.Before(w.cursorStart.Add(w.bucketDur)) {
		return
	}

	steps := int(now.Sub(w.cursorStart) / w.bucketDur)
	if steps >= len(w.buckets) {
		w.reset(now)
		return
	}

	for i := 0; i < steps; i++ {
		w.cursor = (w.cursor + 1) % len(w.buckets)
		w.buckets[w.cursor] = windowBucket{}
	}
	w.cursorStart = w.cursorStart.Add(time.Duration(steps) * w.bucketDur)
}

// reset clears all buckets and restarts the window at now
func (w *window) reset(now time.Time) {
	for i := range w.buckets {
		w.buckets[i] = windowBucket{}
	}
	w.cursor = 0
	w.cursorStart = now
}

func (w *window) recordSuccess()  { w.buckets[w.cursor].successes++ }
func (w *window) recordFailure()  { w.buckets[w.cursor].failures++ }
func (w *window) recordTimeout()  { w.buckets[w.cursor].timeouts++ }
func (w *window) recordFallback() { w.buckets[w.cursor].fallbacks++ }

// totals sums all live buckets
func (w *window) totals() Stats {
	var s Stats
	for _, b := range w.buckets {
		s.Successes += b.successes
		s.Failures += b.failures
		s.Timeouts += b.timeouts
		s.Fallbacks += b.fallbacks
	}
	return s
}
