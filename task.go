package hashwheel

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a scheduled task.
type State int32

const (
	StateScheduled State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Payload is the unit of work carried by a task.
type Payload interface {
	Run() error
}

// PayloadFunc adapts an ordinary function to Payload.
type PayloadFunc func() error

func (f PayloadFunc) Run() error { return f() }

// Task is one scheduled unit of work plus its lifecycle state.
type Task struct {
	id      string
	name    string
	payload Payload
	delay   time.Duration

	// rounds is only written under the owning slot's lock; snapshots read it
	// without the lock.
	rounds atomic.Int64
	slot   atomic.Int64 // -1 until placed, stays -1 when the task bypassed the wheel
	// element is non-nil while the task sits in its slot, guarded by the slot lock.
	element *list.Element

	state atomic.Int32

	mu            sync.Mutex // guards the fields below
	scheduledAt   time.Time
	startedAt     time.Time
	finishedAt    time.Time
	failureReason string
}

func newTask(id, name string, payload Payload, delay time.Duration, now time.Time) *Task {
	t := &Task{
		id:          id,
		name:        name,
		payload:     payload,
		delay:       delay,
		scheduledAt: now,
	}
	t.slot.Store(-1)
	t.state.Store(int32(StateScheduled))
	return t
}

func (t *Task) ID() string { return t.id }

func (t *Task) State() State { return State(t.state.Load()) }

// transition moves the task from one state to another. Only one caller wins
// a given transition.
func (t *Task) transition(from, to State) bool {
	return t.state.CompareAndSwap(int32(from), int32(to))
}

func (t *Task) markRunning(now time.Time) bool {
	if !t.transition(StateScheduled, StateRunning) {
		return false
	}
	t.mu.Lock()
	t.startedAt = now
	t.mu.Unlock()
	return true
}

func (t *Task) finish(err error, now time.Time) State {
	to := StateCompleted
	if err != nil {
		to = StateFailed
	}
	t.mu.Lock()
	t.finishedAt = now
	if err != nil {
		t.failureReason = err.Error()
	}
	t.mu.Unlock()
	t.transition(StateRunning, to)
	return to
}

func (t *Task) markCancelled(now time.Time) bool {
	if !t.transition(StateScheduled, StateCancelled) {
		return false
	}
	t.mu.Lock()
	t.finishedAt = now
	t.mu.Unlock()
	return true
}

// fireAt is the nominal time the task was asked to run.
func (t *Task) fireAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scheduledAt.Add(t.delay)
}

// TaskSnapshot is an immutable copy of a task's observable fields.
type TaskSnapshot struct {
	ID              string        `json:"id"`
	Name            string        `json:"name,omitempty"`
	State           State         `json:"state"`
	Delay           time.Duration `json:"delay"`
	Slot            int           `json:"slot"`
	RoundsRemaining int64         `json:"rounds_remaining"`
	ScheduledAt     time.Time     `json:"scheduled_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	FailureReason   string        `json:"failure_reason,omitempty"`
}

func (t *Task) Snapshot() TaskSnapshot {
	s := TaskSnapshot{
		ID:              t.id,
		Name:            t.name,
		State:           t.State(),
		Delay:           t.delay,
		Slot:            int(t.slot.Load()),
		RoundsRemaining: t.rounds.Load(),
	}
	t.mu.Lock()
	s.ScheduledAt = t.scheduledAt
	if !t.startedAt.IsZero() {
		started := t.startedAt
		s.StartedAt = &started
	}
	if !t.finishedAt.IsZero() {
		finished := t.finishedAt
		s.FinishedAt = &finished
	}
	s.FailureReason = t.failureReason
	t.mu.Unlock()
	return s
}
