package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KFCxMcDonalds/hashwheel"
	"github.com/KFCxMcDonalds/hashwheel/config"
	"github.com/KFCxMcDonalds/hashwheel/httpapi"
	"github.com/KFCxMcDonalds/hashwheel/jobs"
	"github.com/KFCxMcDonalds/hashwheel/logger"
	"github.com/KFCxMcDonalds/hashwheel/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wheel behind the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	log, closer, err := logger.New(cfg.Log, true)
	if err != nil {
		return err
	}
	defer closer.Close()

	opts := []hashwheel.Option{
		hashwheel.WithLogger(log),
		hashwheel.WithPoolSize(cfg.Wheel.WorkerThreads),
		hashwheel.WithRetention(cfg.Wheel.TaskRetention),
		hashwheel.WithShutdownGrace(cfg.Wheel.ShutdownGrace),
	}
	var reg *metrics.Registry
	var metricsHandler http.Handler
	if cfg.Metrics.EnableMetrics {
		reg = metrics.NewRegistry(metrics.Config{
			Namespace:          cfg.Metrics.Namespace,
			IncludeGoCollector: cfg.Metrics.GoCollector,
		})
		opts = append(opts, hashwheel.WithRecorder(reg))
		metricsHandler = reg.Handler()
	}

	tw, err := hashwheel.New(cfg.Wheel.TickDuration, cfg.Wheel.SlotCount, opts...)
	if err != nil {
		return err
	}
	if reg != nil {
		if err := reg.WatchWheel(tw); err != nil {
			return err
		}
	}
	tw.Start()

	srv := httpapi.New(httpapi.Conf{
		Addr:              cfg.HTTP.Addr,
		Mode:              cfg.HTTP.Mode,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}, tw, jobs.NewFactory(log), metricsHandler, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		return shutdown(srv, tw, cfg.Wheel.ShutdownGrace, log)
	})
	return g.Wait()
}

// shutdown stops accepting requests first so nothing is scheduled onto a
// stopping wheel, then stops the wheel.
func shutdown(srv *httpapi.Server, tw *hashwheel.TimeWheel, grace time.Duration, log logrus.FieldLogger) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	return tw.Stop(ctx)
}
