package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return NewExtractor(DefaultRules())
}

func TestExtractReward(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		name string
		text string
		want float64
	}{
		{"plus star", "Вознаграждение: +0.25⭐", 0.25},
		{"received format", "Получено: +0.5⭐", 0.5},
		{"bare star", "0.75⭐ за подписку", 0.75},
		{"reward label", "reward: 1.5", 1.5},
		{"english stars", "You earned 2 stars", 2},
		{"integer amount", "+3⭐", 3},
		{"no reward falls back to default", "Подпишитесь на канал", 0.25},
		{"empty text", "", 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ExtractReward(tt.text))
		})
	}
}

func TestExtractChannelReference(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		name     string
		text     string
		wantKind RefKind
		wantVal  string
		wantLink string
	}{
		{
			name:     "private invite",
			text:     "Подпишитесь: https://t.me/+AbCdEf12",
			wantKind: KindPrivateInvite,
			wantVal:  "AbCdEf12",
			wantLink: "https://t.me/+AbCdEf12",
		},
		{
			name:     "private invite without scheme",
			text:     "t.me/+Zz_9-x",
			wantKind: KindPrivateInvite,
			wantVal:  "Zz_9-x",
			wantLink: "https://t.me/+Zz_9-x",
		},
		{
			name:     "channel list",
			text:     "join all: https://t.me/addlist/HashOfList1",
			wantKind: KindChannelList,
			wantVal:  "HashOfList1",
			wantLink: "https://t.me/addlist/HashOfList1",
		},
		{
			name:     "public channel",
			text:     "Подпишитесь на канал https://t.me/somechannel",
			wantKind: KindPublicChannel,
			wantVal:  "somechannel",
			wantLink: "https://t.me/somechannel",
		},
		{
			name:     "bare handle",
			text:     "Подпишитесь на канал @newsfeed",
			wantKind: KindPublicChannel,
			wantVal:  "newsfeed",
			wantLink: "https://t.me/newsfeed",
		},
		{
			name:     "bot handle routes to sub-bot",
			text:     "Запустите https://t.me/SomeGameBot",
			wantKind: KindSubBot,
			wantVal:  "SomeGameBot",
			wantLink: "https://t.me/SomeGameBot",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := e.ExtractChannelReference(tt.text)
			require.NotNil(t, ref)
			assert.Equal(t, tt.wantKind, ref.Kind)
			assert.Equal(t, tt.wantVal, ref.Value)
			assert.Equal(t, tt.wantLink, ref.Link)
		})
	}
}

func TestExtractChannelReferenceExclusions(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		name string
		text string
	}{
		{"self bot", "https://t.me/StarsovGamesBot"},
		{"referral start link", "https://t.me/SomeBot?start=ref123"},
		{"no link at all", "Задания закончились"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, e.ExtractChannelReference(tt.text))
		})
	}
}

func TestClassify(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		name string
		text string
		want Category
	}{
		{
			name: "rate limited",
			text: "Вы делаете слишком много запросов, подождите",
			want: CategoryRateLimited,
		},
		{
			name: "completion russian",
			text: "✅ Задание выполнено! Получено: +0.25⭐",
			want: CategoryCompletionNotice,
		},
		{
			name: "completion english",
			text: "Task completed, good job",
			want: CategoryCompletionNotice,
		},
		{
			name: "referral excluded from task detection",
			text: "Приглашайте по этой ссылке: https://t.me/StarsovGamesBot?start=123 Вознаграждение: +0.5⭐",
			want: CategoryReferral,
		},
		{
			name: "no tasks",
			text: "Задания закончились, возвращайтесь позже",
			want: CategoryNoTasks,
		},
		{
			name: "skip onboarding instructions",
			text: "💡 Получайте Звёзды за простые задания! 👇",
			want: CategorySkipPrompt,
		},
		{
			name: "confirm prompt",
			text: "Нажмите кнопку чтобы подтвердить подписку",
			want: CategoryConfirmPrompt,
		},
		{
			name: "unrecognized",
			text: "Добрый день!",
			want: CategoryUnrecognized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Classify(tt.text))
		})
	}
}

// A message carrying both skip and confirm wording must classify as a skip
// prompt; the two share surface keywords and skip recovery wins.
func TestClassifySkipBeatsConfirm(t *testing.T) {
	e := newTestExtractor(t)

	text := "⏩ Пропустить или Подтвердить подписку"
	assert.Equal(t, CategorySkipPrompt, e.Classify(text))
}

// A task offer needs all three signals: indicator phrase, a valid channel
// reference and a reward label. Dropping any one demotes the message.
func TestClassifyTaskOfferRequiresAllSignals(t *testing.T) {
	e := newTestExtractor(t)

	full := "🔴 Подпишитесь на канал https://t.me/somechannel Вознаграждение: +0.25⭐"
	require.Equal(t, CategoryTaskOffer, e.Classify(full))

	tests := []struct {
		name string
		text string
	}{
		{"no indicator phrase", "https://t.me/somechannel Вознаграждение: +0.25⭐"},
		{"no channel reference", "🔴 Подпишитесь на канал Вознаграждение: +0.25⭐"},
		{"no reward label", "🔴 Подпишитесь на канал https://t.me/somechannel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, CategoryTaskOffer, e.Classify(tt.text))
		})
	}
}

func TestAnalyzeTaskOffer(t *testing.T) {
	e := newTestExtractor(t)

	text := "🔴 Подпишитесь на канал https://t.me/+AbCdEf12 Вознаграждение: +0.5⭐ Нажмите «Подтвердить»"
	result := e.Analyze(text)

	assert.Equal(t, CategoryTaskOffer, result.Category)
	assert.Equal(t, 0.5, result.Reward)
	require.NotNil(t, result.Channel)
	assert.Equal(t, KindPrivateInvite, result.Channel.Kind)
	assert.Equal(t, "AbCdEf12", result.Channel.Value)
}

func TestIsBotHandle(t *testing.T) {
	assert.True(t, IsBotHandle("SomeGameBot"))
	assert.True(t, IsBotHandle("lowercasebot"))
	assert.False(t, IsBotHandle("somechannel"))
	assert.False(t, IsBotHandle("botnews"))
}
