package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/star-collector/internal/storage"
	"github.com/xaenox/star-collector/internal/transport"
)

const completionText = "✅ Задание выполнено! Получено: +0.5⭐"

// Each confirmation attempt consumes two fetches: the button scan and the
// completion poll.
func confirmAttempt(pollMsgs ...transport.Message) []fetchResult {
	return []fetchResult{
		{msgs: []transport.Message{{ID: 1, Buttons: confirmButton()}}},
		{msgs: pollMsgs},
	}
}

func TestConfirmationSucceedsOnRetry(t *testing.T) {
	sess := &fakeSession{}
	sess.fetches = append(sess.fetches,
		confirmAttempt(transport.Message{ID: 100, Text: "Проверяем подписку..."})...)
	sess.fetches = append(sess.fetches,
		confirmAttempt(transport.Message{ID: 101, Text: completionText})...)

	store := storage.NewMemoryStorage()
	notifier := &recordingNotifier{}
	c := newTestController(sess, store, notifier)

	state := c.runConfirmation(context.Background())

	require.Equal(t, confirmCompleted, state)
	assert.Equal(t, int64(1), c.TasksCompleted())
	assert.False(t, c.confirming.Load())

	// Two confirm clicks, then one restart command.
	assert.Equal(t, [][]byte{[]byte("confirm"), []byte("confirm")}, sess.clickedData)
	assert.Equal(t, []string{restartCommand}, sess.sent())

	notes := notifier.all()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "+0.50⭐")

	stats, err := store.GetStats(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalTasks)
	assert.InDelta(t, 0.5, stats.TotalStars, 1e-9)
}

func TestConfirmationExhaustsAttempts(t *testing.T) {
	sess := &fakeSession{}
	for i := 0; i < 3; i++ {
		sess.fetches = append(sess.fetches,
			confirmAttempt(transport.Message{ID: 100 + i, Text: "Проверяем подписку..."})...)
	}

	store := storage.NewMemoryStorage()
	notifier := &recordingNotifier{}
	c := newTestController(sess, store, notifier)

	state := c.runConfirmation(context.Background())

	require.Equal(t, confirmExhausted, state)
	assert.Equal(t, int64(0), c.TasksCompleted())
	assert.False(t, c.confirming.Load())
	assert.Len(t, sess.clickedData, 3)

	notes := notifier.all()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "Could not collect")

	// The loop always moves on to a fresh offer.
	assert.Equal(t, []string{restartCommand}, sess.sent())
}

func TestConfirmationAbortsOnPollError(t *testing.T) {
	sess := &fakeSession{}
	sess.fetches = []fetchResult{
		{msgs: []transport.Message{{ID: 1, Buttons: confirmButton()}}},
		{err: errors.New("connection reset")},
	}

	store := storage.NewMemoryStorage()
	notifier := &recordingNotifier{}
	c := newTestController(sess, store, notifier)

	state := c.runConfirmation(context.Background())

	require.Equal(t, confirmExhausted, state)
	assert.False(t, c.confirming.Load(), "flag must be released on the error path")

	notes := notifier.all()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "Something went wrong")
	assert.Equal(t, []string{restartCommand}, sess.sent())
}

func TestConfirmationRejectsReentry(t *testing.T) {
	sess := &fakeSession{}
	c := newTestController(sess, storage.NewMemoryStorage(), &recordingNotifier{})

	c.confirming.Store(true)
	state := c.runConfirmation(context.Background())

	assert.Equal(t, confirmExhausted, state)
	assert.True(t, c.confirming.Load(), "held flag stays with its owner")
	assert.Empty(t, sess.sent())
}

func TestConfirmationRespectsNotificationsToggle(t *testing.T) {
	sess := &fakeSession{}
	sess.fetches = append(sess.fetches,
		confirmAttempt(transport.Message{ID: 200, Text: completionText})...)

	store := storage.NewMemoryStorage()
	require.NoError(t, store.SetNotifications(context.Background(), 42, false))

	notifier := &recordingNotifier{}
	c := newTestController(sess, store, notifier)

	state := c.runConfirmation(context.Background())

	require.Equal(t, confirmCompleted, state)
	assert.Equal(t, int64(1), c.TasksCompleted())
	assert.Empty(t, notifier.all())
}
