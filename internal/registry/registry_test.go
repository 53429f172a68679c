package registry

import "testing"

func TestRegisterUnregister(t *testing.T) {
	r := New()

	send := r.Register(1, "tcp:127.0.0.1:1", "", 4)
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}

	select {
	case send <- []byte("<event/>"):
	default:
		t.Fatalf("expected capacity in fresh queue")
	}

	r.Unregister(1)
	if r.Count() != 0 {
		t.Fatalf("count = %d, want 0 after unregister", r.Count())
	}
	<-send // drain the one buffered message; a closed channel still yields it first
	if _, ok := <-send; ok {
		t.Fatalf("expected channel to be closed after unregister")
	}
}

func TestRegisterReplacesAndClosesPrevious(t *testing.T) {
	r := New()

	first := r.Register(7, "tcp:127.0.0.1:1", "", 4)
	second := r.Register(7, "tcp:127.0.0.1:2", "", 4)

	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1 (same id replaces)", r.Count())
	}
	if _, ok := <-first; ok {
		t.Fatalf("expected first channel closed on replace")
	}
	select {
	case second <- []byte("x"):
	default:
		t.Fatalf("expected replacement channel to accept sends")
	}
}

func TestTargetsExcludesSender(t *testing.T) {
	r := New()
	r.Register(1, "a", "", 4)
	r.Register(2, "b", "", 4)
	r.Register(3, "c", "", 4)

	targets := r.Targets(2)
	if len(targets) != 2 {
		t.Fatalf("len(targets) = %d, want 2", len(targets))
	}
	for _, p := range targets {
		if p.ID == 2 {
			t.Fatalf("Targets(2) included excluded id 2")
		}
	}
}

func TestSnapshotOrderedByID(t *testing.T) {
	r := New()
	r.Register(3, "c", "", 1)
	r.Register(1, "a", "", 1)
	r.Register(2, "b", "", 1)

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(snapshot) = %d, want 3", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1].ID > snap[i].ID {
			t.Fatalf("snapshot not ordered by id: %+v", snap)
		}
	}
}

func TestRegisterStoresSubjectAndConnectedAt(t *testing.T) {
	r := New()
	r.Register(1, "tcp:127.0.0.1:1", "CN=operator-1", 4)

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("len(snapshot) = %d, want 1", len(snap))
	}
	if snap[0].Subject != "CN=operator-1" {
		t.Fatalf("subject = %q, want CN=operator-1", snap[0].Subject)
	}
	if snap[0].ConnectedAt.IsZero() {
		t.Fatalf("expected a non-zero ConnectedAt timestamp")
	}
}
