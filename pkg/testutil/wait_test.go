package testutil

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitFor(t *testing.T) {
	var polls int32
	require.NoError(t, WaitFor(time.Second, 5*time.Millisecond, func() bool {
		return atomic.AddInt32(&polls, 1) == 3
	}))
	assert.EqualValues(t, 3, atomic.LoadInt32(&polls))

	require.Error(t, WaitFor(50*time.Millisecond, 10*time.Millisecond, func() bool {
		return false
	}))

	require.Error(t, WaitFor(10*time.Millisecond, 50*time.Millisecond, func() bool {
		return true
	}))
}

func TestCaptureLogs(t *testing.T) {
	hook := CaptureLogs(t)

	logrus.WithField("method", "TestCaptureLogs").Debug("first")
	logrus.Warn("second")

	entry, ok := FindLogEntry(hook, "first")
	require.True(t, ok)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "TestCaptureLogs", entry.Data["method"])

	entry, ok = FindLogEntry(hook, "second")
	require.True(t, ok)
	assert.Equal(t, logrus.WarnLevel, entry.Level)

	_, ok = FindLogEntry(hook, "third")
	assert.False(t, ok)
}
