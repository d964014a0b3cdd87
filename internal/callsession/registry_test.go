package callsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/signaling"
)

func TestRegistry_OneManagerPerParticipant(t *testing.T) {
	h := newHarness()
	f := &fakeFactory{name: "doctor-x", log: h.log}
	r := NewRegistry(Deps{Relay: h.relay, Peers: f, Media: &recordingSource{}}, Config{})

	a := r.Get(Participant{ID: "doctor-x", DisplayName: "Dr X", ClinicID: "clinic-1"})
	b := r.Get(Participant{ID: "doctor-x", DisplayName: "Dr Xavier", ClinicID: "clinic-1"})
	if a != b {
		t.Fatalf("expected the same manager")
	}
	if a.Participant().DisplayName != "Dr Xavier" {
		t.Fatalf("display name not refreshed, got %q", a.Participant().DisplayName)
	}
	if other := r.Get(Participant{ID: "doctor-x", ClinicID: "clinic-2"}); other == a {
		t.Fatalf("clinics must not share a manager")
	}
	if _, ok := r.Lookup("clinic-1", "patient-y"); ok {
		t.Fatalf("lookup must not create")
	}
	if m, ok := r.Lookup("clinic-1", "doctor-x"); !ok || m != a {
		t.Fatalf("lookup missed an existing manager")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 managers, got %d", r.Len())
	}

	if err := a.StartCall(context.Background(), "appt-r1", "patient-y", calls.KindVoice); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.Close(context.Background())

	if phaseOf(a) != calls.PhaseEnded {
		t.Fatalf("close should end active calls, got %s", phaseOf(a))
	}
	if !f.last().isClosed() {
		t.Fatalf("connection left open")
	}
	if r.Get(Participant{ID: "patient-y", ClinicID: "clinic-1"}) != nil {
		t.Fatalf("closed registry must not hand out managers")
	}
}

func TestRegistry_DisplayNameReachesNextOffer(t *testing.T) {
	h := newHarness()
	r := NewRegistry(Deps{Relay: h.relay, Peers: &fakeFactory{name: "doctor-x", log: h.log}, Media: &recordingSource{}}, Config{})
	defer r.Close(context.Background())
	ctx := context.Background()

	y := h.raw(t, "appt-r2", "patient-y")
	offers := make(chan string, 1)
	y.On(signaling.KindOffer, func(ev signaling.Event) {
		if o, ok := ev.(signaling.Offer); ok {
			offers <- o.CallerName
		}
	})

	r.Get(Participant{ID: "doctor-x", DisplayName: "Dr X", ClinicID: "clinic-1"})
	m := r.Get(Participant{ID: "doctor-x", DisplayName: "Dr Xavier", ClinicID: "clinic-1"})
	if err := m.StartCall(ctx, "appt-r2", "patient-y", calls.KindVoice); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case name := <-offers:
		if name != "Dr Xavier" {
			t.Fatalf("offer carried %q", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("offer never arrived")
	}
}

func TestRegistry_PruneDropsIdleManagers(t *testing.T) {
	h := newHarness()
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	r := NewRegistry(Deps{Relay: h.relay, Peers: &fakeFactory{name: "x", log: h.log}, Media: &recordingSource{}, Clock: clock}, Config{})
	defer r.Close(context.Background())
	ctx := context.Background()

	idle := r.Get(Participant{ID: "patient-a", ClinicID: "clinic-1"})
	busy := r.Get(Participant{ID: "doctor-x", ClinicID: "clinic-1"})
	watching := r.Get(Participant{ID: "patient-b", ClinicID: "clinic-1"})
	if err := busy.StartCall(ctx, "appt-p1", "patient-z", calls.KindVoice); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := watching.Watch(ctx, "appt-p2"); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if n := r.Prune(time.Minute); n != 0 {
		t.Fatalf("recently used managers must stay, pruned %d", n)
	}
	advance(2 * time.Minute)
	if n := r.Prune(time.Minute); n != 1 {
		t.Fatalf("expected one pruned manager, got %d", n)
	}
	if _, ok := r.Lookup("clinic-1", "patient-a"); ok {
		t.Fatalf("idle manager still registered")
	}
	if err := idle.Watch(ctx, "appt-p3"); err == nil {
		t.Fatalf("a pruned manager must refuse new work")
	}
	if r.Get(Participant{ID: "patient-a", ClinicID: "clinic-1"}) == idle {
		t.Fatalf("expected a fresh manager after prune")
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 managers, got %d", r.Len())
	}
}
