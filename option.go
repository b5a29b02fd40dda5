package hashwheel

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultPoolSize      = 1000
	defaultRetention     = 10 * time.Minute
	defaultShutdownGrace = 5 * time.Second
)

type Option func(*TimeWheel)

// DefaultOptions discards log output; pass WithLogger to see it. Without
// WithPanicHandler, escaped worker panics are logged at error level.
func DefaultOptions() []Option {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return []Option{
		WithPoolSize(defaultPoolSize),
		WithLogger(logger),
		WithRecorder(nopRecorder{}),
		WithRetention(defaultRetention),
		WithShutdownGrace(defaultShutdownGrace),
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(tw *TimeWheel) {
		tw.logger = logger
	}
}

// WithPanicHandler is called by the worker pool for panics that escape task
// execution. Task payload panics are already recorded as failures.
func WithPanicHandler(handler func(any)) Option {
	return func(tw *TimeWheel) {
		tw.panicHandler = handler
	}
}

// WithPoolSize sets the number of workers executing expired tasks.
func WithPoolSize(size int) Option {
	return func(tw *TimeWheel) {
		tw.poolSize = size
	}
}

// WithRecorder installs an instrumentation sink. A nil recorder disables
// instrumentation.
func WithRecorder(r Recorder) Option {
	return func(tw *TimeWheel) {
		if r == nil {
			r = nopRecorder{}
		}
		tw.recorder = r
	}
}

// WithRetention sets how long finished and cancelled tasks stay queryable
// through GetTask. Zero forgets them as soon as they finish.
func WithRetention(d time.Duration) Option {
	return func(tw *TimeWheel) {
		tw.retention = d
	}
}

// WithShutdownGrace bounds how long Stop waits for running tasks.
func WithShutdownGrace(d time.Duration) Option {
	return func(tw *TimeWheel) {
		tw.shutdownGrace = d
	}
}

// ScheduleOption customises a single Schedule call.
type ScheduleOption func(*scheduleConfig)

type scheduleConfig struct {
	name string
}

// WithName attaches a human readable label to the task.
func WithName(name string) ScheduleOption {
	return func(c *scheduleConfig) {
		c.name = name
	}
}

// Recorder receives instrumentation events from the wheel. Implementations
// must be safe for concurrent use and must not block.
type Recorder interface {
	TaskScheduled(immediate bool)
	TaskStarted(lag time.Duration)
	TaskFinished(state State, runtime time.Duration)
	TaskCancelled()
	Tick(elapsed time.Duration, expired int)
}

type nopRecorder struct{}

func (nopRecorder) TaskScheduled(bool) {}
func (nopRecorder) TaskStarted(time.Duration) {}
func (nopRecorder) TaskFinished(State, time.Duration) {}
func (nopRecorder) TaskCancelled() {}
func (nopRecorder) Tick(time.Duration, int) {}
