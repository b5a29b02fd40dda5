package jobs

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KFCxMcDonalds/hashwheel"
)

// Scheduler is the part of the wheel the generator needs.
type Scheduler interface {
	Schedule(p hashwheel.Payload, delay time.Duration, opts ...hashwheel.ScheduleOption) (string, error)
}

type GenerateOptions struct {
	Count     int
	MaxDelay  time.Duration // delays are uniform in [0, MaxDelay]
	FailRatio float64       // share of jobs of kind "fail"
	Producers int           // goroutines scheduling concurrently
	Seed      int64
}

// Generate schedules opts.Count jobs and returns their ids.
func Generate(ctx context.Context, s Scheduler, f *Factory, opts GenerateOptions) ([]string, error) {
	if opts.Count <= 0 {
		return nil, nil
	}
	if opts.MaxDelay < 0 {
		return nil, fmt.Errorf("jobs: max delay must not be negative, got %v", opts.MaxDelay)
	}
	producers := opts.Producers
	if producers <= 0 {
		producers = 1
	}
	producers = min(producers, opts.Count)

	ids := make([]string, opts.Count)
	g, ctx := errgroup.WithContext(ctx)
	for p := 0; p < producers; p++ {
		p := p // per-iteration copy (go directive < 1.22)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(opts.Seed + int64(p)))
			// producer p owns indices p, p+producers, ...
			for i := p; i < opts.Count; i += producers {
				if err := ctx.Err(); err != nil {
					return err
				}
				spec := Spec{Kind: KindNoop}
				if rng.Float64() < opts.FailRatio {
					spec = Spec{Kind: KindFail, Message: fmt.Sprintf("generated #%d", i)}
				}
				payload, err := f.Build(spec)
				if err != nil {
					return err
				}
				delay := time.Duration(rng.Int63n(int64(opts.MaxDelay) + 1))
				id, err := s.Schedule(payload, delay, hashwheel.WithName(fmt.Sprintf("load-%d", i)))
				if err != nil {
					return fmt.Errorf("schedule job %d: %w", i, err)
				}
				ids[i] = id
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}
