package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresClinicAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeAdminAction}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{ClinicID: "c"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogAdminAction(context.Background(), "c", "u", "super_admin", "1.2.3.4", "viewed call summary", "{}"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("expected ip captured")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
}

func TestService_LogCall(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogCall(context.Background(), "c", "doctor-1", EventTypeCallStarted, "appt-1", "video"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 || evs[0].CallID != "appt-1" || evs[0].Type != EventTypeCallStarted {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestMemoryRepo_EventsForCall(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_ = svc.LogCall(ctx, "clinic-1", "doctor-1", EventTypeCallStarted, "appt-1", "video")
	_ = svc.LogCall(ctx, "clinic-2", "doctor-9", EventTypeCallStarted, "appt-1", "voice")
	_ = svc.LogCall(ctx, "clinic-1", "doctor-1", EventTypeCallEnded, "appt-1", "local_hangup")
	_ = svc.LogCall(ctx, "clinic-1", "doctor-1", EventTypeCallStarted, "appt-2", "voice")

	evs := repo.EventsForCall("clinic-1", "appt-1")
	if len(evs) != 2 || evs[0].Type != EventTypeCallStarted || evs[1].Type != EventTypeCallEnded {
		t.Fatalf("unexpected events %+v", evs)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := repo.Append(cctx, Event{ClinicID: "clinic-1", Type: EventTypeCallEnded}); err == nil {
		t.Fatalf("expected canceled append to fail")
	}
}
