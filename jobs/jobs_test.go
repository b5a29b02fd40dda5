package jobs

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KFCxMcDonalds/hashwheel"
)

func TestFactory_Build(t *testing.T) {
	logger, hook := test.NewNullLogger()
	f := NewFactory(logger)

	p, err := f.Build(Spec{Kind: KindNoop})
	require.NoError(t, err)
	assert.NoError(t, p.Run())

	p, err = f.Build(Spec{Kind: KindLog, Message: "hello"})
	require.NoError(t, err)
	require.NoError(t, p.Run())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "hello", hook.LastEntry().Message)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)

	p, err = f.Build(Spec{Kind: KindSleep, Work: 5 * time.Millisecond})
	require.NoError(t, err)
	start := time.Now()
	require.NoError(t, p.Run())
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	p, err = f.Build(Spec{Kind: KindFail, Message: "boom"})
	require.NoError(t, err)
	err = p.Run()
	assert.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "boom")

	p, err = f.Build(Spec{Kind: KindPanic, Message: "oops"})
	require.NoError(t, err)
	assert.PanicsWithValue(t, "jobs: oops", func() { _ = p.Run() })
}

func TestFactory_BuildRejects(t *testing.T) {
	f := NewFactory(logrus.New())

	_, err := f.Build(Spec{Kind: "reboot"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = f.Build(Spec{Kind: KindSleep, Work: -time.Second})
	assert.Error(t, err)
}

func TestKinds(t *testing.T) {
	assert.Equal(t, []string{"fail", "log", "noop", "panic", "sleep"}, Kinds())
}

type recordingScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	failAt int
}

func (r *recordingScheduler) Schedule(p hashwheel.Payload, delay time.Duration, _ ...hashwheel.ScheduleOption) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.delays) == r.failAt {
		return "", hashwheel.ErrClosed
	}
	r.delays = append(r.delays, delay)
	return fmt.Sprintf("task-%d", len(r.delays)), nil
}

func TestGenerate_SchedulesCount(t *testing.T) {
	s := &recordingScheduler{}
	ids, err := Generate(context.Background(), s, NewFactory(logrus.New()), GenerateOptions{
		Count:     200,
		MaxDelay:  time.Second,
		Producers: 4,
		Seed:      7,
	})
	require.NoError(t, err)
	assert.Len(t, ids, 200)
	for _, id := range ids {
		assert.NotEmpty(t, id)
	}
	require.Len(t, s.delays, 200)
	for _, d := range s.delays {
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestGenerate_PropagatesScheduleError(t *testing.T) {
	s := &recordingScheduler{failAt: 10}
	_, err := Generate(context.Background(), s, NewFactory(logrus.New()), GenerateOptions{
		Count:    50,
		MaxDelay: time.Millisecond,
	})
	assert.ErrorIs(t, err, hashwheel.ErrClosed)
}

func TestGenerate_Empty(t *testing.T) {
	ids, err := Generate(context.Background(), &recordingScheduler{}, NewFactory(logrus.New()), GenerateOptions{})
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = Generate(context.Background(), &recordingScheduler{}, NewFactory(logrus.New()), GenerateOptions{
		Count:    1,
		MaxDelay: -time.Second,
	})
	assert.Error(t, err)
}

func TestGenerate_AgainstWheel(t *testing.T) {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	tw, err := hashwheel.New(5*time.Millisecond, 16, hashwheel.WithLogger(quiet), hashwheel.WithPoolSize(16))
	require.NoError(t, err)
	tw.Start()
	t.Cleanup(func() { _ = tw.Stop(context.Background()) })

	ids, err := Generate(context.Background(), tw, NewFactory(quiet), GenerateOptions{
		Count:     300,
		MaxDelay:  100 * time.Millisecond,
		FailRatio: 0.5,
		Producers: 3,
		Seed:      1,
	})
	require.NoError(t, err)
	require.Len(t, ids, 300)

	require.Eventually(t, func() bool {
		st := tw.Stats()
		return st.TotalCompleted+st.TotalFailed == 300
	}, 5*time.Second, 10*time.Millisecond)

	st := tw.Stats()
	assert.Positive(t, st.TotalFailed)
	assert.Positive(t, st.TotalCompleted)
	assert.Zero(t, st.ActiveTaskCount)

	failed := 0
	for _, id := range ids {
		snap, ok := tw.GetTask(id)
		require.True(t, ok)
		if snap.State == hashwheel.StateFailed {
			failed++
			assert.Contains(t, snap.FailureReason, "synthetic failure")
		}
	}
	assert.EqualValues(t, st.TotalFailed, failed)
}
