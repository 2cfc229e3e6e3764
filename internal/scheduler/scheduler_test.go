package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalSchedulerRunsAndStops(t *testing.T) {
	var runs atomic.Int32
	sched := NewIntervalScheduler(context.Background(), 10*time.Millisecond)
	task := sched.Start(func() { runs.Add(1) })

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	assert.True(t, task.Running())

	task.Stop()
	assert.False(t, task.Running())

	settled := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, runs.Load())
}

func TestIntervalSchedulerRunImmediately(t *testing.T) {
	var runs atomic.Int32
	sched := NewIntervalScheduler(context.Background(), time.Hour)
	sched.RunImmediately = true
	task := sched.Start(func() { runs.Add(1) })
	defer task.Stop()

	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestIntervalSchedulerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	sched := NewIntervalScheduler(ctx, 5*time.Millisecond)
	task := sched.Start(func() { runs.Add(1) })

	cancel()
	require.Eventually(t, func() bool {
		return !task.Running()
	}, time.Second, 5*time.Millisecond)
}

func TestIntervalSchedulerInvalidInput(t *testing.T) {
	sched := NewIntervalScheduler(context.Background(), 0)
	task := sched.Start(func() {})
	assert.False(t, task.Running())
	task.Stop() // no-op task still stops cleanly

	task = NewIntervalScheduler(context.Background(), time.Second).Start(nil)
	assert.False(t, task.Running())
}

func TestParseIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30s", 30 * time.Second, true},
		{"15m", 15 * time.Minute, true},
		{"4h", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"2w", 14 * 24 * time.Hour, true},
		{" 1H ", time.Hour, true},
		{"", 0, false},
		{"m", 0, false},
		{"0m", 0, false},
		{"-5m", 0, false},
		{"5x", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseIntervalDuration(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
