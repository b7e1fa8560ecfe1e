package notify

import "testing"

type recordingSink struct {
	events []string
}

func (r *recordingSink) Notify(event, commitID, runnerAddr string, payload []byte) {
	r.events = append(r.events, event+":"+commitID)
}

func TestMultiFansOutToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := NewMulti(a, b)
	m.Notify("assigned", "abc123", "localhost:9001", nil)

	if len(a.events) != 1 || a.events[0] != "assigned:abc123" {
		t.Errorf("sink a did not receive event: %v", a.events)
	}
	if len(b.events) != 1 || b.events[0] != "assigned:abc123" {
		t.Errorf("sink b did not receive event: %v", b.events)
	}
}

func TestMultiDropsNilSinks(t *testing.T) {
	a := &recordingSink{}
	m := NewMulti(a, nil)
	m.Notify("registered", "", "localhost:9001", nil)

	if len(m.sinks) != 1 {
		t.Fatalf("expected nil sink to be dropped, got %d sinks", len(m.sinks))
	}
	if len(a.events) != 1 {
		t.Errorf("sink a did not receive event: %v", a.events)
	}
}
