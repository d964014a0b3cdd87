package callsession

import (
	"context"
	"sync"
	"time"
)

// Registry hands out one Manager per participant, created on first use.
// Participants are keyed by clinic and user, so equal user IDs in two
// clinics never share a Manager.
type Registry struct {
	deps Deps
	cfg  Config

	mu       sync.Mutex
	managers map[string]*entry
	closed   bool
}

type entry struct {
	m        *Manager
	lastUsed time.Time
}

func NewRegistry(deps Deps, cfg Config) *Registry {
	return &Registry{deps: deps.withDefaults(), cfg: cfg, managers: map[string]*entry{}}
}

func registryKey(clinicID, userID string) string { return clinicID + "/" + userID }

// Get returns p's Manager, creating it if needed. A changed display name
// is applied to the existing Manager. It returns nil after Close.
func (r *Registry) Get(p Participant) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	now := r.deps.Clock()
	key := registryKey(p.ClinicID, p.ID)
	if e, ok := r.managers[key]; ok {
		e.lastUsed = now
		if p.DisplayName != "" {
			e.m.SetDisplayName(p.DisplayName)
		}
		return e.m
	}
	m := NewManager(p, r.deps, r.cfg)
	r.managers[key] = &entry{m: m, lastUsed: now}
	return m
}

// Lookup returns an existing Manager without creating one.
func (r *Registry) Lookup(clinicID, userID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.managers[registryKey(clinicID, userID)]
	if !ok {
		return nil, false
	}
	return e.m, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// Prune drops Managers untouched for idleFor that hold no call, watch or
// event stream, and returns how many it dropped.
func (r *Registry) Prune(idleFor time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	cutoff := r.deps.Clock().Add(-idleFor)
	n := 0
	for key, e := range r.managers {
		if e.lastUsed.After(cutoff) {
			continue
		}
		if e.m.closeIfIdle() {
			delete(r.managers, key)
			n++
		}
	}
	return n
}

// Run prunes every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, every, idleFor time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Prune(idleFor); n > 0 {
				r.deps.Logger.Debug("idle call managers pruned", "count", n, "remaining", r.Len())
			}
		}
	}
}

// Close ends every active call.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	managers := make([]*Manager, 0, len(r.managers))
	for _, e := range r.managers {
		managers = append(managers, e.m)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, m := range managers {
		m := m
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Close(ctx)
		}()
	}
	wg.Wait()
}
