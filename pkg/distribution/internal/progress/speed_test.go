package progress

import (
	"testing"
	"time"
)

func TestSpeedTracker(t *testing.T) {
	start := time.Unix(0, 0)
	tr := NewSpeedTracker(start)

	if rate := tr.Add(start.Add(500*time.Millisecond), 1000); rate != 0 {
		t.Errorf("rate before 1s window = %v, want 0", rate)
	}

	rate := tr.Add(start.Add(1100*time.Millisecond), 100)
	if rate <= 0 {
		t.Errorf("rate after 1.1s window = %v, want > 0", rate)
	}

	if got := tr.Rate(); got != rate {
		t.Errorf("Rate() = %v, want %v", got, rate)
	}
}
