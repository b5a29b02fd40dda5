// Package logger builds the process logger: logrus writing to stdout and,
// when a file name is configured, to a time rotated log file.
package logger

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

var ErrRotationTime = errors.New("logger: rotation time must be between 1m and 24h")

type Conf struct {
	Level        string        `mapstructure:"level" validate:"oneof=panic fatal error warn info debug trace"`
	Path         string        `mapstructure:"path"`
	Name         string        `mapstructure:"name"` // empty disables the file output
	JSON         bool          `mapstructure:"json"`
	Caller       bool          `mapstructure:"caller"`
	MaxAge       time.Duration `mapstructure:"max_age" validate:"omitempty,min=1m,max=720h"`
	RotationTime time.Duration `mapstructure:"rotation_time" validate:"omitempty,min=1m,max=24h"`
}

func DefaultConf() Conf {
	return Conf{
		Level:        "info",
		Path:         "./logs",
		MaxAge:       15 * 24 * time.Hour,
		RotationTime: 24 * time.Hour,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns the logger and a closer for its file output. stdout controls
// whether log lines are also written to the console.
func New(conf Conf, stdout bool) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(strings.ToLower(conf.Level))
	if err != nil {
		level = logrus.InfoLevel
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	if conf.Name != "" {
		w, err := rotating(conf)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, w)
		closer = w
	}
	if stdout {
		writers = append(writers, os.Stdout)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(io.MultiWriter(writers...))
	l.SetReportCaller(conf.Caller)
	if conf.JSON {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}
	return l, closer, nil
}

func rotating(conf Conf) (*rotatelogs.RotateLogs, error) {
	rotation := conf.RotationTime
	if rotation == 0 {
		rotation = 24 * time.Hour
	}
	if rotation < time.Minute || rotation > 24*time.Hour {
		return nil, ErrRotationTime
	}
	maxAge := conf.MaxAge
	if maxAge == 0 {
		maxAge = 15 * 24 * time.Hour
	}

	pattern := "_%Y%m%d.log"
	if rotation < time.Hour {
		pattern = "_%Y%m%d%H%M.log"
	} else if rotation < 24*time.Hour {
		pattern = "_%Y%m%d%H.log"
	}

	dir := conf.Path
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	base := filepath.Join(dir, conf.Name)
	return rotatelogs.New(
		base+pattern,
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithRotationTime(rotation),
	)
}
