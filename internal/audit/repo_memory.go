package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps audit events in process. Tests and single-node local
// runs use it in place of the Postgres repository.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns every event in append order.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// EventsForCall returns one clinic's events for a call session channel,
// in append order.
func (r *MemoryRepo) EventsForCall(clinicID, callID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.ClinicID == clinicID && e.CallID == callID {
			out = append(out, e)
		}
	}
	return out
}
