package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/star-collector/internal/patterns"
	"github.com/xaenox/star-collector/internal/storage"
	"github.com/xaenox/star-collector/internal/transport"
)

// fetchResult is one scripted FetchRecent response.
type fetchResult struct {
	msgs []transport.Message
	err  error
}

// fakeSession is a scripted transport.Session: FetchRecent pops responses
// from a queue, every outbound call is recorded.
type fakeSession struct {
	mu      sync.Mutex
	handler transport.Handler

	fetches []fetchResult

	sentTexts    []string
	clickedData  [][]byte
	joinedPublic []string
	imported     []string
	importedList []string
	startedBots  []string

	joinErr   error
	importErr error
	listErr   error
	startErr  error
	sendErr   error
	clickErr  error

	closed bool
}

func (f *fakeSession) Subscribe(sender string, fn transport.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = fn
	return nil
}

func (f *fakeSession) SendText(ctx context.Context, target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTexts = append(f.sentTexts, text)
	return nil
}

func (f *fakeSession) FetchRecent(ctx context.Context, target string, limit int) ([]transport.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fetches) == 0 {
		return nil, nil
	}
	next := f.fetches[0]
	f.fetches = f.fetches[1:]
	return next.msgs, next.err
}

func (f *fakeSession) ClickInlineAction(ctx context.Context, target string, messageID int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clickedData = append(f.clickedData, data)
	return nil
}

func (f *fakeSession) JoinPublicChannel(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinedPublic = append(f.joinedPublic, handle)
	return f.joinErr
}

func (f *fakeSession) ImportInvite(ctx context.Context, inviteHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imported = append(f.imported, inviteHash)
	return f.importErr
}

func (f *fakeSession) ImportInviteList(ctx context.Context, listHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.importedList = append(f.importedList, listHash)
	return f.listErr
}

func (f *fakeSession) StartBot(ctx context.Context, botHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startedBots = append(f.startedBots, botHandle)
	return f.startErr
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sentTexts))
	copy(out, f.sentTexts)
	return out
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer hands out a prepared session, or fails.
type fakeDialer struct {
	mu    sync.Mutex
	sess  *fakeSession
	err   error
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, creds transport.Credentials) (transport.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	if d.sess == nil {
		d.sess = &fakeSession{}
	}
	return d.sess, nil
}

// recordingNotifier collects every delivered notification.
type recordingNotifier struct {
	mu    sync.Mutex
	notes []string
}

func (n *recordingNotifier) Notify(accountID int64, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, text)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.notes))
	copy(out, n.notes)
	return out
}

// testConfig keeps every delay tiny so the retry loops run in milliseconds.
func testConfig() Config {
	return Config{
		TargetBot:           "@StarsovGamesBot",
		MaxConfirmAttempts:  3,
		SettleDelay:         time.Millisecond,
		ConfirmPollDelay:    time.Millisecond,
		FallbackGap:         time.Millisecond,
		RateLimitBackoff:    time.Millisecond,
		NoTasksBackoff:      time.Millisecond,
		HealthCheckInterval: time.Hour,
		CallTimeout:         time.Second,
		ClickWindow:         5,
		PollWindow:          3,
	}
}

func newTestController(sess *fakeSession, store storage.Storage, notifier Notifier) *Controller {
	return newController(42, testConfig(), patterns.NewExtractor(patterns.DefaultRules()),
		sess, store, notifier, zap.NewNop())
}

func confirmButton() [][]transport.Button {
	return [][]transport.Button{{{Label: "✅ Подтвердить подписку", Data: []byte("confirm")}}}
}

func skipButton() [][]transport.Button {
	return [][]transport.Button{{{Label: "⏩ Пропустить", Data: []byte("skip")}}}
}
