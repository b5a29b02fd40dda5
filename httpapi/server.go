// Package httpapi exposes a time wheel over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/KFCxMcDonalds/hashwheel"
	"github.com/KFCxMcDonalds/hashwheel/jobs"
)

// Scheduler is the wheel API the handlers use.
type Scheduler interface {
	Schedule(p hashwheel.Payload, delay time.Duration, opts ...hashwheel.ScheduleOption) (string, error)
	Cancel(id string) bool
	GetTask(id string) (hashwheel.TaskSnapshot, bool)
	ListActiveTasks() []hashwheel.TaskSnapshot
	Stats() hashwheel.Stats
}

type Conf struct {
	// listen address, e.g. ":8080"
	Addr string
	// gin mode: debug, release or test
	Mode              string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

type Server struct {
	conf    Conf
	sched   Scheduler
	factory *jobs.Factory
	logger  logrus.FieldLogger
	engine  *gin.Engine
	server  *http.Server
}

// New wires the routes. metrics may be nil, in which case /metrics is not
// served.
func New(conf Conf, sched Scheduler, factory *jobs.Factory, metrics http.Handler, logger logrus.FieldLogger) *Server {
	if conf.Mode != "" {
		gin.SetMode(conf.Mode)
	}
	s := &Server{
		conf:    conf,
		sched:   sched,
		factory: factory,
		logger:  logger,
		engine:  gin.New(),
	}
	s.engine.Use(
		gin.Recovery(),
		gzip.Gzip(gzip.DefaultCompression),
		requestLogger(logger),
	)

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := s.engine.Group("/v1")
	v1.POST("/tasks", s.createTask)
	v1.GET("/tasks", s.listTasks)
	v1.GET("/tasks/:id", s.getTask)
	v1.DELETE("/tasks/:id", s.cancelTask)
	v1.GET("/stats", s.stats)

	s.server = &http.Server{
		Addr:              conf.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		IdleTimeout:       conf.IdleTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until the server is shut down. A clean shutdown is
// not reported as an error.
func (s *Server) ListenAndServe() error {
	s.logger.WithField("addr", s.conf.Addr).Info("http server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := logger.WithFields(logrus.Fields{
			"client":  c.ClientIP(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		})
		if len(c.Errors) > 0 {
			entry.Warn(c.Errors.String())
			return
		}
		entry.Debug("request")
	}
}
