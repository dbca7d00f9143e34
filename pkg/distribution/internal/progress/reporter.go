package progress

import (
	"sync"
	"time"
)

// UpdateInterval defines how often aggregate progress updates are emitted.
const UpdateInterval = 100 * time.Millisecond

// MinBytesForUpdate is the minimum incremental byte count that forces an
// update even before UpdateInterval has elapsed.
const MinBytesForUpdate = 1 << 20 // 1 MiB

// Tracker aggregates progress across multiple concurrent shard transfers
// (the downloader's bounded-concurrency fetch set) into a single Event
// stream keyed on the overall model total, throttled to UpdateInterval /
// MinBytesForUpdate so a fast producer doesn't flood a slow sink.
type Tracker struct {
	mu          sync.Mutex
	sink        Sink
	modelID     string
	total       int64
	perShard    map[int]int64
	lastEmitted int64
	lastUpdate  time.Time
	speed       *SpeedTracker
}

// NewTracker returns a Tracker that reports aggregate progress to sink.
func NewTracker(sink Sink, modelID string, total int64) *Tracker {
	return &Tracker{
		sink:     sink,
		modelID:  modelID,
		total:    total,
		perShard: make(map[int]int64),
		speed:    NewSpeedTracker(time.Now()),
	}
}

// Update records that shard index now has written bytes transferred, and
// emits an aggregate Event if the throttle conditions are met.
func (t *Tracker) Update(index int, written int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.perShard[index]
	t.perShard[index] = written
	delta := written - prev

	now := time.Now()
	rate := t.speed.Add(now, delta)

	var sum int64
	for _, v := range t.perShard {
		sum += v
	}

	incremental := sum - t.lastEmitted
	if now.Sub(t.lastUpdate) < UpdateInterval && incremental < MinBytesForUpdate && sum != t.total {
		return
	}
	t.lastUpdate = now
	t.lastEmitted = sum

	e := NewEvent(StageFetching, t.modelID, sum, t.total)
	e.SpeedBps = rate
	if t.sink != nil {
		t.sink.Report(e)
	}
}
