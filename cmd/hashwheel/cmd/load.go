package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/KFCxMcDonalds/hashwheel"
	"github.com/KFCxMcDonalds/hashwheel/jobs"
	"github.com/KFCxMcDonalds/hashwheel/logger"
)

type loadFlags struct {
	count     int
	maxDelay  time.Duration
	slots     int
	tick      time.Duration
	workers   int
	failRatio float64
	producers int
	seed      int64
	timeout   time.Duration
	logLevel  string
}

var lf loadFlags

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Push synthetic tasks through an in-process wheel and print the final stats",
	Example: `  hashwheel load
  hashwheel load --count 10000 --max-delay 10s --fail-ratio 0.1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLoad(cmd.Context(), cmd.OutOrStdout(), lf)
	},
}

func init() {
	f := loadCmd.Flags()
	f.IntVarP(&lf.count, "count", "n", 1000, "number of tasks to schedule")
	f.DurationVar(&lf.maxDelay, "max-delay", 5*time.Second, "delays are uniform in [0, max-delay]")
	f.IntVar(&lf.slots, "slots", 512, "wheel slot count")
	f.DurationVar(&lf.tick, "tick", 10*time.Millisecond, "wheel tick duration")
	f.IntVar(&lf.workers, "workers", 64, "worker pool size")
	f.Float64Var(&lf.failRatio, "fail-ratio", 0, "share of tasks that return an error")
	f.IntVar(&lf.producers, "producers", 4, "goroutines scheduling concurrently")
	f.Int64Var(&lf.seed, "seed", time.Now().UnixNano(), "random seed")
	f.DurationVar(&lf.timeout, "timeout", 0, "give up waiting after this long (default: max-delay + 10s)")
	f.StringVar(&lf.logLevel, "log-level", "warn", "log level")
}

func runLoad(ctx context.Context, out io.Writer, opts loadFlags) error {
	conf := logger.DefaultConf()
	conf.Level = opts.logLevel
	log, closer, err := logger.New(conf, true)
	if err != nil {
		return err
	}
	defer closer.Close()

	tw, err := hashwheel.New(opts.tick, opts.slots,
		hashwheel.WithLogger(log),
		hashwheel.WithPoolSize(opts.workers),
		hashwheel.WithRetention(0),
	)
	if err != nil {
		return err
	}
	tw.Start()

	timeout := opts.timeout
	if timeout <= 0 {
		timeout = opts.maxDelay + 10*time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	_, err = jobs.Generate(ctx, tw, jobs.NewFactory(log), jobs.GenerateOptions{
		Count:     opts.count,
		MaxDelay:  opts.maxDelay,
		FailRatio: opts.failRatio,
		Producers: opts.producers,
		Seed:      opts.seed,
	})
	if err != nil {
		_ = tw.Stop(context.Background())
		return err
	}
	log.WithFields(logrus.Fields{
		"count":  opts.count,
		"took":   time.Since(start),
		"active": tw.Stats().ActiveTaskCount,
	}).Info("all tasks scheduled")

	waitErr := waitDone(ctx, tw, int64(opts.count))
	elapsed := time.Since(start)
	if err := tw.Stop(context.Background()); err != nil {
		log.WithError(err).Warn("stop")
	}

	st := tw.Stats()
	st.SlotSizes = nil
	b, err := json.MarshalIndent(struct {
		hashwheel.Stats
		Elapsed string `json:"elapsed"`
	}{st, elapsed.String()}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(b))
	return waitErr
}

func waitDone(ctx context.Context, tw *hashwheel.TimeWheel, want int64) error {
	ticker := time.NewTicker(tw.TickDuration())
	defer ticker.Stop()
	for {
		st := tw.Stats()
		done := st.TotalCompleted + st.TotalFailed + st.TotalCancelled
		if done >= want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d of %d tasks still outstanding: %w", want-done, want, ctx.Err())
		case <-ticker.C:
		}
	}
}
