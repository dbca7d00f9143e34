package progress

import "testing"

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Report(e Event) {
	r.events = append(r.events, e)
}

func TestTracker_EmitsOnCompletion(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(sink, "model-a", 100)

	tr.Update(0, 50)
	tr.Update(1, 50)

	if len(sink.events) == 0 {
		t.Fatal("expected at least one event")
	}
	last := sink.events[len(sink.events)-1]
	if last.Current != 100 || last.Total != 100 {
		t.Errorf("last event = %+v, want current=total=100", last)
	}
}
