package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/star-collector/internal/models"
	"github.com/xaenox/star-collector/internal/patterns"
	"github.com/xaenox/star-collector/internal/storage"
	"github.com/xaenox/star-collector/internal/transport"
)

const restartCommand = "/start"

// Controller drives one account's task loop. Message arrival, the startup
// kick and the watchdog are concurrent triggers into the same state, so the
// processing and confirming flags are real atomics: processing is claimed
// with CompareAndSwap and a message that loses the claim is dropped, not
// queued. The remote bot re-sends state and the watchdog covers gaps.
type Controller struct {
	accountID int64
	cfg       Config
	extractor *patterns.Extractor
	sess      transport.Session
	store     storage.Storage
	notifier  Notifier
	joiner    *Joiner
	clicker   *Clicker
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	active         atomic.Bool
	processing     atomic.Bool
	confirming     atomic.Bool
	tasksCompleted atomic.Int64
	startedAt      time.Time

	// currentLink is only written while processing is held.
	currentLink string
}

func newController(accountID int64, cfg Config, extractor *patterns.Extractor,
	sess transport.Session, store storage.Storage, notifier Notifier, logger *zap.Logger) *Controller {

	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		accountID: accountID,
		cfg:       cfg,
		extractor: extractor,
		sess:      sess,
		store:     store,
		notifier:  notifier,
		joiner:    NewJoiner(cfg, logger),
		clicker:   NewClicker(cfg, logger),
		logger:    logger.With(zap.Int64("account_id", accountID)),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (c *Controller) start() error {
	c.active.Store(true)
	c.startedAt = time.Now()

	if err := c.sess.Subscribe(c.cfg.TargetBot, c.onMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.cfg.TargetBot, err)
	}

	c.wg.Add(2)
	go c.startupKick()
	go c.watchdog()
	return nil
}

// stop tears the unit down: in-flight transport calls are cancelled through
// the run context and both timers observe it within one interval.
func (c *Controller) stop() {
	c.active.Store(false)
	c.cancel()
	c.wg.Wait()
	if err := c.sess.Close(); err != nil {
		c.logger.Warn("error closing session", zap.Error(err))
	}
	c.logger.Info("collection stopped",
		zap.Int64("tasks_completed", c.tasksCompleted.Load()),
		zap.Duration("uptime", time.Since(c.startedAt)))
}

// TasksCompleted is the process-lifetime counter; it resets when the
// controller is recreated, not on every message.
func (c *Controller) TasksCompleted() int64 { return c.tasksCompleted.Load() }

func (c *Controller) StartedAt() time.Time { return c.startedAt }

func (c *Controller) onMessage(msg transport.Message) {
	if !c.active.Load() {
		return
	}
	if !c.processing.CompareAndSwap(false, true) {
		c.logger.Debug("dropping message, already processing",
			zap.Int("message_id", msg.ID))
		return
	}
	defer c.processing.Store(false)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while handling message", zap.Any("panic", r))
		}
	}()

	c.handle(c.ctx, msg)
}

func (c *Controller) handle(ctx context.Context, msg transport.Message) {
	result := c.extractor.Analyze(msg.Text)
	c.logger.Info("processing message",
		zap.Int("message_id", msg.ID),
		zap.String("category", string(result.Category)),
		zap.String("preview", preview(msg.Text)))

	switch result.Category {
	case patterns.CategoryRateLimited:
		if settle(ctx, c.cfg.RateLimitBackoff) {
			c.requestNewTask(ctx)
		}

	case patterns.CategoryCompletionNotice:
		// The confirmation loop records its own completions; this path
		// catches notices arriving outside it. The dedupe key keeps the
		// two paths from double counting.
		if !c.confirming.Load() {
			c.recordCompletion(ctx, msg)
		}
		if settle(ctx, c.cfg.SettleDelay) {
			c.requestNewTask(ctx)
		}

	case patterns.CategoryTaskOffer:
		c.handleTaskOffer(ctx, result)

	case patterns.CategoryNoTasks:
		c.logger.Info("no tasks available, backing off",
			zap.Duration("backoff", c.cfg.NoTasksBackoff))
		if settle(ctx, c.cfg.NoTasksBackoff) {
			c.requestNewTask(ctx)
		}

	case patterns.CategorySkipPrompt:
		c.skipAndRestart(ctx)

	case patterns.CategoryConfirmPrompt:
		c.runConfirmation(ctx)

	case patterns.CategoryReferral:
		// Not a real task; ignore.

	default:
		// Unrecognized: request a fresh offer so the account cannot stall
		// on an unparseable message.
		c.requestNewTask(ctx)
	}
}

func (c *Controller) handleTaskOffer(ctx context.Context, result patterns.ClassifiedMessage) {
	ref := result.Channel
	if ref == nil {
		c.requestNewTask(ctx)
		return
	}
	c.currentLink = ref.Link
	c.logger.Info("task offer received",
		zap.String("kind", string(ref.Kind)),
		zap.String("link", ref.Link),
		zap.Float64("reward", result.Reward))

	switch c.joiner.Join(ctx, c.sess, ref) {
	case JoinPending:
		c.skipAndRestart(ctx)
	case JoinFailed:
		// Skip regardless of whether the skip itself lands; a new offer is
		// requested either way.
		c.notify("❌ Could not join the channel for this task, skipping it.")
		rules := c.extractor.Rules()
		c.clicker.Click(ctx, c.sess, rules.SkipButtonWords, rules.SkipFallbacks)
		if settle(ctx, c.cfg.SettleDelay) {
			c.requestNewTask(ctx)
		}
	case Joined:
		if settle(ctx, c.cfg.SettleDelay) {
			c.runConfirmation(ctx)
		}
	}
}

func (c *Controller) skipAndRestart(ctx context.Context) {
	rules := c.extractor.Rules()
	if c.clicker.Click(ctx, c.sess, rules.SkipButtonWords, rules.SkipFallbacks) {
		c.logger.Info("skipped current offer")
	}
	if settle(ctx, c.cfg.SettleDelay) {
		c.requestNewTask(ctx)
	}
}

// recordCompletion credits one finished task: counter, owner notification
// and the durable task row. The remote message ID is the dedupe key, so a
// notice seen by both completion paths is only credited once.
func (c *Controller) recordCompletion(ctx context.Context, msg transport.Message) {
	reward := c.extractor.ExtractReward(msg.Text)

	key := fmt.Sprintf("msg-%d", msg.ID)
	if msg.ID == 0 {
		key = uuid.NewString()
	}

	inserted, err := c.store.AddTask(ctx, &models.TaskRecord{
		AccountID:   c.accountID,
		TaskType:    "channel_join",
		ChannelLink: c.currentLink,
		Reward:      reward,
		DedupeKey:   key,
	})
	if err != nil {
		// Persistence failures never stop the loop.
		c.logger.Error("failed to persist task", zap.Error(err), zap.Float64("reward", reward))
	}
	if err == nil && !inserted {
		c.logger.Debug("completion already recorded", zap.String("dedupe_key", key))
		return
	}

	total := c.tasksCompleted.Add(1)
	c.logger.Info("task completed",
		zap.Float64("reward", reward),
		zap.Int64("tasks_completed", total))
	c.notify(completionMessage(reward, total))
}

func (c *Controller) requestNewTask(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	if err := c.sess.SendText(callCtx, c.cfg.TargetBot, restartCommand); err != nil {
		c.logger.Warn("failed to request new task", zap.Error(err))
	}
}

func (c *Controller) startupKick() {
	defer c.wg.Done()
	if !settle(c.ctx, c.cfg.SettleDelay) {
		return
	}
	c.logger.Info("requesting initial task")
	c.requestNewTask(c.ctx)
}

// watchdog re-polls the remote bot when the unit has been idle for a full
// interval; it covers dropped or missed messages, not the primary flow.
func (c *Controller) watchdog() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.active.Load() {
				return
			}
			if c.processing.Load() || c.confirming.Load() {
				continue
			}
			c.logger.Info("periodic check, requesting new tasks")
			c.requestNewTask(c.ctx)
		}
	}
}

func (c *Controller) notify(text string) {
	settings, err := c.store.GetSettings(c.ctx, c.accountID)
	if err == nil && settings != nil && !settings.Notifications {
		return
	}
	c.notifier.Notify(c.accountID, text)
}

func completionMessage(reward float64, totalTasks int64) string {
	return fmt.Sprintf(
		"✅ Task completed! +%.2f⭐\n📊 Tasks this run: %d\n\n"+
			"⚠️ Keep the channel subscription for at least 7 days to avoid a penalty.\n"+
			"🚀 Looking for the next task...",
		reward, totalTasks)
}

func preview(text string) string {
	const max = 100
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
