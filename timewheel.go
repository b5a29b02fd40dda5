package hashwheel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidConfig is returned by New for a non-positive geometry or pool size.
	ErrInvalidConfig = errors.New("hashwheel: invalid configuration")
	// ErrNegativeDelay rejects a Schedule call with delay < 0.
	ErrNegativeDelay = errors.New("hashwheel: delay must not be negative")
	// ErrNilPayload rejects a Schedule call without work to run.
	ErrNilPayload = errors.New("hashwheel: payload must not be nil")
	// ErrClosed is returned once Stop has begun.
	ErrClosed = errors.New("hashwheel: time wheel is closed")
)

// TimeWheel is a single level hashed timing wheel. Tasks are hashed into
// slotCount slots by their delay in ticks; delays longer than one revolution
// carry a round counter that is decremented each time the pointer passes.
type TimeWheel struct {
	tick      time.Duration
	slotCount int64
	slots     []*Slot

	// cursor counts ticks since start; the pointer is cursor % slotCount.
	cursor atomic.Int64

	scheduled atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	running   atomic.Int64

	registry   *cache.Cache // task id -> *Task
	dispatcher *dispatcher

	poolSize      int
	retention     time.Duration
	shutdownGrace time.Duration
	logger        logrus.FieldLogger
	panicHandler  func(any)
	recorder      Recorder

	tickMu sync.Mutex // serialises advance

	admitMu   sync.Mutex // guards closed and admitting
	admitDone *sync.Cond // signalled when admitting drops to zero
	closed    bool
	admitting int // Schedule calls past the closed check

	exitCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds a wheel with slotCount slots of width tick. The wheel does not
// advance until Start is called.
func New(tick time.Duration, slotCount int, opts ...Option) (*TimeWheel, error) {
	if tick <= 0 {
		return nil, fmt.Errorf("%w: tick duration must be > 0, got %v", ErrInvalidConfig, tick)
	}
	if slotCount <= 0 {
		return nil, fmt.Errorf("%w: slot count must be > 0, got %d", ErrInvalidConfig, slotCount)
	}

	slots := make([]*Slot, slotCount)
	for i := range slots {
		slots[i] = newSlot(i)
	}
	tw := &TimeWheel{
		tick:      tick,
		slotCount: int64(slotCount),
		slots:     slots,
		exitCh:    make(chan struct{}),
	}
	tw.admitDone = sync.NewCond(&tw.admitMu)
	for _, opt := range append(DefaultOptions(), opts...) {
		opt(tw)
	}
	if tw.poolSize <= 0 {
		return nil, fmt.Errorf("%w: worker pool size must be > 0, got %d", ErrInvalidConfig, tw.poolSize)
	}
	if tw.retention < 0 {
		return nil, fmt.Errorf("%w: task retention must be >= 0, got %v", ErrInvalidConfig, tw.retention)
	}

	cleanup := tw.retention / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	tw.registry = cache.New(cache.NoExpiration, cleanup)

	if tw.panicHandler == nil {
		logger := tw.logger
		tw.panicHandler = func(p any) {
			logger.Errorf("time wheel worker panic: %v", p)
		}
	}
	d, err := newDispatcher(tw.poolSize, tw.execute, tw.reject, tw.logger, tw.panicHandler)
	if err != nil {
		return nil, err
	}
	tw.dispatcher = d
	return tw, nil
}

// Start launches the ticking goroutine. Calling it more than once is a no-op.
func (tw *TimeWheel) Start() {
	tw.startOnce.Do(func() {
		tw.wg.Add(1)
		go func() {
			defer tw.wg.Done()
			tw.run()
		}()
		tw.logger.WithFields(logrus.Fields{
			"slots": tw.slotCount,
			"tick":  tw.tick,
			"pool":  tw.poolSize,
		}).Info("time wheel started")
	})
}

// run re-arms the timer after each tick, so a slow tick delays every later
// tick instead of being caught up.
func (tw *TimeWheel) run() {
	timer := time.NewTimer(tw.tick)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			tw.advance()
			timer.Reset(tw.tick)
		case <-tw.exitCh:
			return
		}
	}
}

// Stop shuts the wheel down: ticking stops, new schedules are refused, every
// task still waiting in a slot is cancelled, and running tasks get up to the
// shutdown grace (or ctx's deadline, whichever is sooner) to finish.
func (tw *TimeWheel) Stop(ctx context.Context) error {
	var err error
	tw.stopOnce.Do(func() {
		close(tw.exitCh)
		tw.wg.Wait()

		tw.admitMu.Lock()
		tw.closed = true
		for tw.admitting > 0 {
			tw.admitDone.Wait()
		}
		tw.admitMu.Unlock()

		now := time.Now()
		n := 0
		for _, s := range tw.slots {
			for _, t := range s.drainAll() {
				if t.markCancelled(now) {
					tw.cancelled.Add(1)
					tw.recorder.TaskCancelled()
					tw.retire(t)
					n++
				}
			}
		}

		grace := tw.shutdownGrace
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); left < grace {
				grace = left
			}
		}
		err = tw.dispatcher.release(grace)
		tw.logger.WithFields(logrus.Fields{
			"cancelled": n,
			"completed": tw.completed.Load(),
			"failed":    tw.failed.Load(),
		}).Info("time wheel stopped")
	})
	return err
}

// Schedule runs p once after delay and returns the task id. A delay shorter
// than one tick skips the wheel and goes straight to the worker pool.
// Fire time is quantised to the tick: the elapsed part of the current tick
// is not accounted for.
func (tw *TimeWheel) Schedule(p Payload, delay time.Duration, opts ...ScheduleOption) (string, error) {
	if p == nil {
		return "", ErrNilPayload
	}
	if delay < 0 {
		return "", fmt.Errorf("%w: %v", ErrNegativeDelay, delay)
	}

	if !tw.admit() {
		return "", ErrClosed
	}
	defer tw.admitted()

	var cfg scheduleConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	t := newTask(uuid.NewString(), cfg.name, p, delay, time.Now())
	tw.registry.Set(t.id, t, cache.NoExpiration)
	tw.scheduled.Add(1)

	if delay < tw.tick {
		tw.recorder.TaskScheduled(true)
		tw.dispatcher.submit(t)
		return t.id, nil
	}

	tw.recorder.TaskScheduled(false)
	tw.place(t)
	return t.id, nil
}

// admit registers an in-flight Schedule call unless Stop has begun.
func (tw *TimeWheel) admit() bool {
	tw.admitMu.Lock()
	defer tw.admitMu.Unlock()
	if tw.closed {
		return false
	}
	tw.admitting++
	return true
}

func (tw *TimeWheel) admitted() {
	tw.admitMu.Lock()
	tw.admitting--
	if tw.admitting == 0 {
		tw.admitDone.Broadcast()
	}
	tw.admitMu.Unlock()
}

// ScheduleFunc is Schedule for a plain function.
func (tw *TimeWheel) ScheduleFunc(f func() error, delay time.Duration, opts ...ScheduleOption) (string, error) {
	if f == nil {
		return "", ErrNilPayload
	}
	return tw.Schedule(PayloadFunc(f), delay, opts...)
}

// place hashes t into its slot. If the pointer moves while we wait for the
// slot lock the placement is recomputed, so a task is never parked behind a
// slot the pointer has just drained.
func (tw *TimeWheel) place(t *Task) {
	ticks := delayToTicks(t.delay, tw.tick)
	rounds := roundsFor(ticks, tw.slotCount)

	for {
		cursor := tw.cursor.Load()
		target := targetSlot(cursor, ticks, tw.slotCount)
		ok := tw.slots[target].add(t, func() bool {
			if tw.cursor.Load() != cursor {
				return false
			}
			t.rounds.Store(rounds)
			t.slot.Store(target)
			return true
		})
		if ok {
			return
		}
	}
}

// Cancel removes a task that is still waiting in its slot. It reports false
// for unknown ids, for tasks already handed to the worker pool and for
// tasks in a terminal state.
func (tw *TimeWheel) Cancel(id string) bool {
	v, ok := tw.registry.Get(id)
	if !ok {
		return false
	}
	t := v.(*Task)
	idx := t.slot.Load()
	if idx < 0 {
		return false
	}
	if !tw.slots[idx].remove(t, func(t *Task) bool { return t.markCancelled(time.Now()) }) {
		return false
	}
	tw.cancelled.Add(1)
	tw.recorder.TaskCancelled()
	tw.retire(t)
	tw.logger.WithField("task", id).Debug("task cancelled")
	return true
}

// advance moves the pointer one slot and hands that slot's expired tasks to
// the dispatcher. Tasks with rounds left stay where they are.
func (tw *TimeWheel) advance() {
	tw.tickMu.Lock()
	defer tw.tickMu.Unlock()

	start := time.Now()
	cursor := tw.cursor.Add(1)
	expired, _ := tw.slots[cursor%tw.slotCount].drainExpired()

	// the slot lock is released before anything reaches the pool
	for _, t := range expired {
		tw.dispatcher.submit(t)
	}
	tw.recorder.Tick(time.Since(start), len(expired))
}

// execute runs on a pool worker.
func (tw *TimeWheel) execute(t *Task) {
	start := time.Now()
	if !t.markRunning(start) {
		// cancelled while queued for a worker
		return
	}
	tw.running.Add(1)
	defer tw.running.Add(-1)
	tw.recorder.TaskStarted(start.Sub(t.fireAt()))

	err := runPayload(t.payload)

	end := time.Now()
	state := t.finish(err, end)
	if state == StateFailed {
		tw.failed.Add(1)
		tw.logger.WithFields(logrus.Fields{
			"task":  t.id,
			"name":  t.name,
			"error": err,
		}).Warn("task failed")
	} else {
		tw.completed.Add(1)
	}
	tw.recorder.TaskFinished(state, end.Sub(start))
	tw.retire(t)
}

// reject handles a task the pool refused, which only happens once the pool
// has been released.
func (tw *TimeWheel) reject(t *Task, err error) {
	if t.markCancelled(time.Now()) {
		tw.cancelled.Add(1)
		tw.recorder.TaskCancelled()
		tw.retire(t)
	}
	tw.logger.WithFields(logrus.Fields{
		"task":  t.id,
		"error": err,
	}).Error("worker pool rejected task")
}

// retire keeps a terminal task queryable for the retention window.
func (tw *TimeWheel) retire(t *Task) {
	if tw.retention <= 0 {
		tw.registry.Delete(t.id)
		return
	}
	tw.registry.Set(t.id, t, tw.retention)
}

func (tw *TimeWheel) SlotCount() int { return int(tw.slotCount) }

func (tw *TimeWheel) TickDuration() time.Duration { return tw.tick }

// CurrentIndex is the slot the pointer last visited.
func (tw *TimeWheel) CurrentIndex() int {
	return int(tw.cursor.Load() % tw.slotCount)
}
