// Package icequeue buffers remote ICE candidates until the remote description is set.
package icequeue

import (
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// ApplyFunc applies one candidate to the peer connection.
type ApplyFunc func(webrtc.ICECandidateInit) error

// Queue holds candidates while the gate is closed. Flush opens the gate
// exactly once; afterwards every candidate is applied on arrival.
type Queue struct {
	log *slog.Logger

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
	apply   ApplyFunc
	flushed bool
	open    bool
	applied int
	skipped int
}

func New(log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{log: log}
}

// EnqueueOrApply buffers c, or applies it immediately once the queue is open.
// It reports whether c was applied now.
func (q *Queue) EnqueueOrApply(c webrtc.ICECandidateInit) bool {
	q.mu.Lock()
	if !q.open {
		q.pending = append(q.pending, c)
		q.mu.Unlock()
		return false
	}
	apply := q.apply
	q.mu.Unlock()

	if apply == nil {
		return false
	}
	q.applyOne(apply, c)
	return true
}

// Flush applies every buffered candidate in arrival order with apply, then
// opens the gate so later candidates use apply directly. Only the first call
// has any effect; it returns the number of candidates it applied.
func (q *Queue) Flush(apply ApplyFunc) int {
	q.mu.Lock()
	if q.flushed {
		q.mu.Unlock()
		return 0
	}
	q.flushed = true
	q.apply = apply

	n := 0
	// Candidates arriving mid-flush join the tail so arrival order holds.
	for len(q.pending) > 0 {
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()
		for _, c := range batch {
			if q.applyOne(apply, c) {
				n++
			}
		}
		q.mu.Lock()
	}
	q.open = true
	q.mu.Unlock()
	return n
}

func (q *Queue) applyOne(apply ApplyFunc, c webrtc.ICECandidateInit) bool {
	if err := apply(c); err != nil {
		q.mu.Lock()
		q.skipped++
		q.mu.Unlock()
		q.log.Warn("ice candidate skipped", "candidate", c.Candidate, "err", err)
		return false
	}
	q.mu.Lock()
	q.applied++
	q.mu.Unlock()
	return true
}

// Clear drops buffered candidates and detaches the apply func.
// A cleared queue stays closed to new work: candidates are discarded.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.flushed = true
	q.open = true
	q.apply = nil
}

// Len is the number of buffered candidates.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Open reports whether the remote description has been set.
func (q *Queue) Open() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.open && q.apply != nil
}

// Stats returns applied and skipped counts.
func (q *Queue) Stats() (applied, skipped int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.applied, q.skipped
}
