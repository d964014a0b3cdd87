package calls

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory history repository for tests and local runs.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{records: map[string]Record{}} }

func (r *MemoryRepo) Insert(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return nil
	}
	r.records[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, clinicID, id string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.ClinicID != clinicID {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) ListByClinic(ctx context.Context, clinicID string, from, to time.Time) ([]Record, error) {
	if clinicID == "" {
		return nil, errors.New("clinic_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0)
	for _, rec := range r.records {
		if rec.ClinicID != clinicID {
			continue
		}
		if rec.StartedAt.Before(from) || !rec.StartedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// All returns every stored record, unordered.
func (r *MemoryRepo) All() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}
