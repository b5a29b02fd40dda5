package hashwheel

import (
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// dispatcher executes expired tasks on a fixed size goroutine pool so the
// tick loop never runs user payloads inline.
type dispatcher struct {
	pool   *ants.Pool
	run    func(*Task)
	reject func(*Task, error)
	logger logrus.FieldLogger
}

func newDispatcher(size int, run func(*Task), reject func(*Task, error), logger logrus.FieldLogger, panicHandler func(any)) (*dispatcher, error) {
	// blocking pool: a saturated pool blocks the submitter until a worker frees up
	pool, err := ants.NewPool(size,
		ants.WithPanicHandler(panicHandler),
		ants.WithLogger(logrusAdapter{logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &dispatcher{
		pool:   pool,
		run:    run,
		reject: reject,
		logger: logger,
	}, nil
}

func (d *dispatcher) submit(t *Task) {
	if err := d.pool.Submit(func() { d.run(t) }); err != nil {
		d.reject(t, err)
	}
}

// release waits up to grace for running tasks, then closes the pool.
func (d *dispatcher) release(grace time.Duration) error {
	if grace <= 0 {
		d.pool.Release()
		return nil
	}
	if err := d.pool.ReleaseTimeout(grace); err != nil {
		return fmt.Errorf("release worker pool: %w", err)
	}
	return nil
}

// runPayload runs p and converts a panic into an error.
func runPayload(p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Run()
}

type logrusAdapter struct {
	logger logrus.FieldLogger
}

func (l logrusAdapter) Printf(format string, args ...any) {
	l.logger.WithField("component", "worker-pool").Infof(format, args...)
}
