package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/star-collector/internal/models"
)

func TestMemoryStorageAccounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	acc, err := s.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, acc, "unknown account reads as nil")

	require.NoError(t, s.EnsureAccount(ctx, 1))
	require.NoError(t, s.SaveSession(ctx, 1, "opaque-session"))
	require.NoError(t, s.SavePhone(ctx, 1, "+79990001122"))

	acc, err = s.GetAccount(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "opaque-session", acc.SessionString)
	assert.Equal(t, "+79990001122", acc.PhoneNumber)
	assert.False(t, acc.IsActive)
}

func TestMemoryStorageAddTaskDedupe(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	task := &models.TaskRecord{
		AccountID:   1,
		TaskType:    "channel_join",
		ChannelLink: "https://t.me/somechannel",
		Reward:      0.5,
		DedupeKey:   "msg-100",
	}

	inserted, err := s.AddTask(ctx, task)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.AddTask(ctx, task)
	require.NoError(t, err)
	assert.False(t, inserted, "same dedupe key must not insert twice")

	// Same key on another account is a distinct completion.
	other := *task
	other.AccountID = 2
	inserted, err = s.AddTask(ctx, &other)
	require.NoError(t, err)
	assert.True(t, inserted)

	stats, err := s.GetStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalTasks)
	assert.Equal(t, 1, stats.TodayTasks)
	assert.InDelta(t, 0.5, stats.TotalStars, 1e-9)
}

func TestMemoryStorageStatsAccumulate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	for i, reward := range []float64{0.25, 0.5, 1.0} {
		inserted, err := s.AddTask(ctx, &models.TaskRecord{
			AccountID: 1,
			TaskType:  "channel_join",
			Reward:    reward,
			DedupeKey: string(rune('a' + i)),
		})
		require.NoError(t, err)
		require.True(t, inserted)
	}

	stats, err := s.GetStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalTasks)
	assert.InDelta(t, 1.75, stats.TotalStars, 1e-9)
}

func TestMemoryStorageSettings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	settings, err := s.GetSettings(ctx, 1)
	require.NoError(t, err)
	assert.True(t, settings.Notifications, "notifications default to on")

	require.NoError(t, s.SetNotifications(ctx, 1, false))
	settings, err = s.GetSettings(ctx, 1)
	require.NoError(t, err)
	assert.False(t, settings.Notifications)
}

func TestMemoryStorageActiveAccounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	// Active with a session: resumable.
	require.NoError(t, s.SaveSession(ctx, 1, "session-1"))
	require.NoError(t, s.SetAutoCollect(ctx, 1, true))

	// Active but never registered a session: skipped.
	require.NoError(t, s.SetAutoCollect(ctx, 2, true))

	// Registered but stopped: skipped.
	require.NoError(t, s.SaveSession(ctx, 3, "session-3"))
	require.NoError(t, s.SetAutoCollect(ctx, 3, false))

	accounts, err := s.ActiveAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, int64(1), accounts[0].ID)
	assert.True(t, accounts[0].IsActive)
}
