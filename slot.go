package hashwheel

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Slot is one position of the wheel. Each slot owns its own lock so ticking
// slot N never blocks scheduling into slot M.
type Slot struct {
	index int
	tasks *list.List // list of *Task
	count atomic.Int64

	mu sync.Mutex
}

func newSlot(index int) *Slot {
	return &Slot{
		index: index,
		tasks: list.New(),
	}
}

// add inserts t unless valid reports that the placement went stale while
// waiting for the lock.
func (s *Slot) add(t *Task, valid func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if valid != nil && !valid() {
		return false
	}
	t.element = s.tasks.PushBack(t)
	s.count.Add(1)
	return true
}

// remove takes t out of the slot if it is still there and still scheduled,
// marking it cancelled in the same critical section.
func (s *Slot) remove(t *Task, cancel func(*Task) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.element == nil {
		// already handed to the dispatcher or drained
		return false
	}
	if !cancel(t) {
		return false
	}
	s.tasks.Remove(t.element)
	t.element = nil
	s.count.Add(-1)
	return true
}

// drainExpired removes every task whose rounds reached zero and decrements
// the rest in place. Expired tasks come back in list order.
func (s *Slot) drainExpired() (expired, requeued []*Task) {
	s.mu.Lock()
	for e := s.tasks.Front(); e != nil; {
		next := e.Next()

		t := e.Value.(*Task)
		if r := t.rounds.Load(); r > 0 {
			t.rounds.Store(r - 1)
			requeued = append(requeued, t)
		} else {
			s.tasks.Remove(e)
			t.element = nil
			expired = append(expired, t)
		}

		e = next
	}
	s.count.Add(-int64(len(expired)))
	s.mu.Unlock()
	return expired, requeued
}

// drainAll empties the slot regardless of rounds.
func (s *Slot) drainAll() []*Task {
	var ts []*Task

	s.mu.Lock()
	for e := s.tasks.Front(); e != nil; {
		next := e.Next()

		t := e.Value.(*Task)
		s.tasks.Remove(e)
		t.element = nil
		ts = append(ts, t)

		e = next
	}
	s.count.Store(0)
	s.mu.Unlock()
	return ts
}

// size is lock free so stats readers never wait on a tick.
func (s *Slot) size() int {
	return int(s.count.Load())
}
