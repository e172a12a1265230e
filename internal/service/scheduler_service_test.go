package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec("07:30")
	require.NoError(t, err)
	assert.Equal(t, "0 30 7 * * *", spec)

	for _, bad := range []string{"", "7", "24:00", "12:60", "ab:cd", "1:2:3"} {
		_, err := buildDailySpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestSchedulerService_Register(t *testing.T) {
	s := NewSchedulerService(time.UTC, zap.NewNop())

	_, err := s.ScheduleDaily("06:00", func() {})
	require.NoError(t, err)
	_, err = s.ScheduleSpec("@every 1h", func() {})
	require.NoError(t, err)
	_, err = s.ScheduleInterval(90*time.Second, func() {})
	require.NoError(t, err)

	_, err = s.ScheduleSpec("not a spec", func() {})
	assert.Error(t, err)
	_, err = s.ScheduleInterval(0, func() {})
	assert.Error(t, err)

	s.Start()
	defer s.Stop()
	entries := s.Entries()
	assert.Len(t, entries, 3)
	for _, next := range entries {
		assert.False(t, next.IsZero())
	}
}

func TestSchedulerService_ScheduleSweep(t *testing.T) {
	env := newTestEnv(t, "2025-03-01")
	s := NewSchedulerService(time.UTC, zap.NewNop())

	_, err := s.ScheduleSweep("@every 1h", time.Minute, env.sweeper, zap.NewNop())
	require.NoError(t, err)
	_, err = s.ScheduleSweep("06:30", time.Minute, env.sweeper, zap.NewNop())
	require.NoError(t, err)
	_, err = s.ScheduleSweep("15m", time.Minute, env.sweeper, zap.NewNop())
	require.NoError(t, err)

	for _, bad := range []string{"bogus", "25:00", "-5m"} {
		_, err = s.ScheduleSweep(bad, time.Minute, env.sweeper, zap.NewNop())
		assert.Error(t, err, bad)
	}

	s.Start()
	defer s.Stop()
	assert.Len(t, s.Entries(), 3)
}
