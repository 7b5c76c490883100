package tfsm

import (
	"container/heap"
	"time"
)

// timerEntry is one armed timer: fire transition TransitionIndex no
// earlier than DueAt.
type timerEntry struct {
	DueAt           time.Time
	TransitionIndex int
	seq             uint64 // insertion order, used to break DueAt ties
}

// timerHeap is a container/heap.Interface ordering entries by DueAt
// ascending, ties broken by insertion order so that simultaneously
// expiring timers fire in the order they were armed.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].DueAt.Equal(h[j].DueAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].DueAt.Before(h[j].DueAt)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Scheduler is a min-heap of armed timers keyed by firing instant,
// addressing transitions by index into the owning Automaton's
// transition slice. The scheduler never holds a timer whose transition's
// source state differs from the automaton's active state, except
// transiently inside Automaton.fireTransition, between the change of
// active state and the PurgeForState call.
type Scheduler struct {
	heap    timerHeap
	nextSeq uint64
	now     func() time.Time
}

// NewScheduler builds an empty Scheduler. now is injectable for tests;
// nil defaults to time.Now.
func NewScheduler(now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	s := &Scheduler{now: now}
	heap.Init(&s.heap)
	return s
}

// Arm schedules transitionIndex to fire after delay.
func (s *Scheduler) Arm(transitionIndex int, delay time.Duration) {
	s.nextSeq++
	heap.Push(&s.heap, &timerEntry{
		DueAt:           s.now().Add(delay),
		TransitionIndex: transitionIndex,
		seq:             s.nextSeq,
	})
}

// NextTimeout reports how long until the soonest armed timer fires. A
// timer already past due reports zero. An empty scheduler reports ok=false.
func (s *Scheduler) NextTimeout() (d time.Duration, ok bool) {
	if s.heap.Len() == 0 {
		return 0, false
	}
	due := s.heap[0].DueAt
	now := s.now()
	if !due.After(now) {
		return 0, true
	}
	return due.Sub(now), true
}

// PopExpired removes and returns, in due-time order (ties broken by
// insertion order), every transition index whose timer is due at or
// before now.
func (s *Scheduler) PopExpired(now time.Time) []int {
	var fired []int
	for s.heap.Len() > 0 && !s.heap[0].DueAt.After(now) {
		e := heap.Pop(&s.heap).(*timerEntry)
		fired = append(fired, e.TransitionIndex)
	}
	return fired
}

// PurgeForState removes every pending timer whose transition's source
// state is not active, by extracting every entry, filtering, and
// re-pushing the survivors — correct regardless of container/heap's
// unordered internal slice layout. Runs at every state entry.
func (s *Scheduler) PurgeForState(active int, srcOf func(transitionIndex int) int) {
	if s.heap.Len() == 0 {
		return
	}
	kept := make(timerHeap, 0, len(s.heap))
	for _, e := range s.heap {
		if srcOf(e.TransitionIndex) == active {
			kept = append(kept, e)
		}
	}
	s.heap = kept
	heap.Init(&s.heap)
}

// Len reports the number of armed timers, for tests and diagnostics.
func (s *Scheduler) Len() int { return s.heap.Len() }
