package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FileOutput(t *testing.T) {
	dir := t.TempDir()
	conf := DefaultConf()
	conf.Path = dir
	conf.Name = "wheel"
	conf.Level = "debug"

	l, closer, err := New(conf, false)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("task", "abc").Info("hello")
	require.NoError(t, closer.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "wheel_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	b, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "task=abc")
}

func TestNew_BadLevelFallsBack(t *testing.T) {
	l, _, err := New(Conf{Level: "loud"}, false)
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestNew_RotationBounds(t *testing.T) {
	_, _, err := New(Conf{Name: "x", Path: t.TempDir(), RotationTime: time.Second}, false)
	assert.ErrorIs(t, err, ErrRotationTime)
}
