package events

import "testing"

func TestSeqGenPerJob(t *testing.T) {
	g := NewSeqGen()
	if got := g.Next("a"); got != 1 {
		t.Fatalf("first seq = %d", got)
	}
	if got := g.Next("a"); got != 2 {
		t.Fatalf("second seq = %d", got)
	}
	if got := g.Next("b"); got != 1 {
		t.Fatalf("other job seq = %d, want independent counter", got)
	}
}

func TestMetaIsolation(t *testing.T) {
	meta := map[string]string{MetaReason: "safety"}
	ev := NewStatusEvent("job-1", 1, "error", meta)

	meta[MetaReason] = "mutated"
	if got := ev.Meta()[MetaReason]; got != "safety" {
		t.Fatalf("meta leaked caller mutation: %q", got)
	}

	out := ev.Meta()
	out[MetaReason] = "mutated again"
	if got := ev.Meta()[MetaReason]; got != "safety" {
		t.Fatalf("meta leaked reader mutation: %q", got)
	}
}
