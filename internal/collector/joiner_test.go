package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/star-collector/internal/patterns"
	"github.com/xaenox/star-collector/internal/transport"
)

func TestJoinPublicChannel(t *testing.T) {
	tests := []struct {
		name    string
		joinErr error
		want    JoinOutcome
	}{
		{"success", nil, Joined},
		{"already participant counts as joined", fmt.Errorf("join: %w", transport.ErrAlreadyParticipant), Joined},
		{"pending approval", fmt.Errorf("join: %w", transport.ErrJoinRequestSent), JoinPending},
		{"pending surfaced as text", errors.New("rpc: successfully requested to join the channel"), JoinPending},
		{"private channel", fmt.Errorf("join: %w", transport.ErrChannelPrivate), JoinFailed},
		{"invalid username", fmt.Errorf("join: %w", transport.ErrInvalidUsername), JoinFailed},
		{"flood wait", fmt.Errorf("join: %w", transport.ErrFloodWait), JoinFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{joinErr: tt.joinErr}
			j := NewJoiner(testConfig(), zap.NewNop())

			got := j.Join(context.Background(), sess, &patterns.ChannelReference{
				Kind:  patterns.KindPublicChannel,
				Value: "somechannel",
				Link:  "https://t.me/somechannel",
			})

			assert.Equal(t, tt.want, got)
			assert.Equal(t, []string{"somechannel"}, sess.joinedPublic)
		})
	}
}

func TestJoinPrivateInvite(t *testing.T) {
	sess := &fakeSession{importErr: fmt.Errorf("import: %w", transport.ErrInviteExpired)}
	j := NewJoiner(testConfig(), zap.NewNop())

	got := j.Join(context.Background(), sess, &patterns.ChannelReference{
		Kind:  patterns.KindPrivateInvite,
		Value: "AbCdEf12",
		Link:  "https://t.me/+AbCdEf12",
	})

	assert.Equal(t, JoinFailed, got)
	assert.Equal(t, []string{"AbCdEf12"}, sess.imported)
}

func TestJoinChannelList(t *testing.T) {
	sess := &fakeSession{}
	j := NewJoiner(testConfig(), zap.NewNop())

	got := j.Join(context.Background(), sess, &patterns.ChannelReference{
		Kind:  patterns.KindChannelList,
		Value: "XyZ123",
		Link:  "https://t.me/addlist/XyZ123",
	})

	assert.Equal(t, Joined, got)
	assert.Equal(t, []string{"XyZ123"}, sess.importedList)
}

func TestJoinSubBot(t *testing.T) {
	t.Run("start and click first button", func(t *testing.T) {
		sess := &fakeSession{
			fetches: []fetchResult{
				{msgs: []transport.Message{{
					ID:      7,
					Text:    "Добро пожаловать!",
					Buttons: [][]transport.Button{{{Label: "Играть", Data: []byte("play")}}},
				}}},
			},
		}
		j := NewJoiner(testConfig(), zap.NewNop())

		got := j.Join(context.Background(), sess, &patterns.ChannelReference{
			Kind:  patterns.KindSubBot,
			Value: "SomeGameBot",
			Link:  "https://t.me/SomeGameBot",
		})

		require.Equal(t, Joined, got)
		assert.Equal(t, []string{"SomeGameBot"}, sess.startedBots)
		assert.Equal(t, [][]byte{[]byte("play")}, sess.clickedData)
	})

	t.Run("start failure fails the task", func(t *testing.T) {
		sess := &fakeSession{startErr: errors.New("peer not found")}
		j := NewJoiner(testConfig(), zap.NewNop())

		got := j.Join(context.Background(), sess, &patterns.ChannelReference{
			Kind:  patterns.KindSubBot,
			Value: "SomeGameBot",
		})

		assert.Equal(t, JoinFailed, got)
	})

	t.Run("no buttons is still a success", func(t *testing.T) {
		sess := &fakeSession{
			fetches: []fetchResult{{msgs: []transport.Message{{ID: 7, Text: "hi"}}}},
		}
		j := NewJoiner(testConfig(), zap.NewNop())

		got := j.Join(context.Background(), sess, &patterns.ChannelReference{
			Kind:  patterns.KindSubBot,
			Value: "SomeGameBot",
		})

		assert.Equal(t, Joined, got)
		assert.Empty(t, sess.clickedData)
	})
}

func TestJoinOutcomeString(t *testing.T) {
	assert.Equal(t, "joined", Joined.String())
	assert.Equal(t, "pending", JoinPending.String())
	assert.Equal(t, "failed", JoinFailed.String())
}
