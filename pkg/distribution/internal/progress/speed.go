package progress

import "time"

// SpeedTracker maintains a rolling bytes-per-second estimate over windows of
// at least one second, as used by the downloader to report transfer rate.
type SpeedTracker struct {
	windowStart time.Time
	windowBytes int64
	lastRate    float64
	now         func() time.Time
}

// NewSpeedTracker returns a tracker anchored at the given start time.
func NewSpeedTracker(start time.Time) *SpeedTracker {
	return &SpeedTracker{windowStart: start, now: time.Now}
}

// Add records delta additional bytes transferred at time t, updating the
// rolling rate once the current window has spanned at least one second.
func (s *SpeedTracker) Add(t time.Time, delta int64) float64 {
	s.windowBytes += delta
	elapsed := t.Sub(s.windowStart).Seconds()
	if elapsed >= 1.0 {
		s.lastRate = float64(s.windowBytes) / elapsed
		s.windowStart = t
		s.windowBytes = 0
	}
	return s.lastRate
}

// Rate returns the most recently computed bytes-per-second estimate.
func (s *SpeedTracker) Rate() float64 {
	return s.lastRate
}
