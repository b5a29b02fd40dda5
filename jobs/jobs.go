// Package jobs provides the demo payloads the HTTP layer and the load
// generator schedule onto the wheel.
package jobs

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KFCxMcDonalds/hashwheel"
)

var (
	ErrUnknownKind = errors.New("jobs: unknown job kind")
	// ErrJobFailed is what the "fail" kind returns.
	ErrJobFailed = errors.New("jobs: synthetic failure")
)

const (
	KindNoop  = "noop"
	KindLog   = "log"
	KindSleep = "sleep"
	KindFail  = "fail"
	KindPanic = "panic"
)

// Spec describes a job independently of how it was requested.
type Spec struct {
	Kind    string
	Message string
	Work    time.Duration
}

type builder func(f *Factory, spec Spec) hashwheel.Payload

var builders = map[string]builder{
	KindNoop: func(*Factory, Spec) hashwheel.Payload {
		return hashwheel.PayloadFunc(func() error { return nil })
	},
	KindLog: func(f *Factory, spec Spec) hashwheel.Payload {
		return hashwheel.PayloadFunc(func() error {
			f.logger.WithField("job", KindLog).Info(spec.Message)
			return nil
		})
	},
	KindSleep: func(_ *Factory, spec Spec) hashwheel.Payload {
		return hashwheel.PayloadFunc(func() error {
			time.Sleep(spec.Work)
			return nil
		})
	},
	KindFail: func(_ *Factory, spec Spec) hashwheel.Payload {
		return hashwheel.PayloadFunc(func() error {
			if spec.Message != "" {
				return fmt.Errorf("%w: %s", ErrJobFailed, spec.Message)
			}
			return ErrJobFailed
		})
	},
	KindPanic: func(_ *Factory, spec Spec) hashwheel.Payload {
		return hashwheel.PayloadFunc(func() error {
			panic("jobs: " + spec.Message)
		})
	},
}

// Factory turns a Spec into a payload.
type Factory struct {
	logger logrus.FieldLogger
}

func NewFactory(logger logrus.FieldLogger) *Factory {
	return &Factory{logger: logger}
}

func (f *Factory) Build(spec Spec) (hashwheel.Payload, error) {
	b, ok := builders[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
	if spec.Work < 0 {
		return nil, fmt.Errorf("jobs: work duration must not be negative, got %v", spec.Work)
	}
	return b(f, spec), nil
}

func Kinds() []string {
	kinds := make([]string, 0, len(builders))
	for k := range builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
