package collector

import (
	"context"

	"go.uber.org/zap"

	"github.com/xaenox/star-collector/internal/patterns"
)

// confirmState is the retry loop's terminal state.
type confirmState int

const (
	confirmCompleted confirmState = iota
	confirmExhausted
)

// runConfirmation alternates clicking the confirm action and polling for a
// completion notice, up to the attempt budget. The remote bot's confirm can
// silently no-op while a fresh join propagates, so a single blind click has
// too many false negatives; bounded retry with re-classification after each
// attempt is the recovery.
//
// The confirming flag is held for the loop's duration and released on every
// exit path; a stuck flag would permanently silence the watchdog.
func (c *Controller) runConfirmation(ctx context.Context) confirmState {
	if !c.confirming.CompareAndSwap(false, true) {
		return confirmExhausted
	}
	defer c.confirming.Store(false)

	rules := c.extractor.Rules()
	for attempt := 1; attempt <= c.cfg.MaxConfirmAttempts; attempt++ {
		c.clicker.Click(ctx, c.sess, rules.ConfirmButtonWords, rules.ConfirmFallbacks)

		if !settle(ctx, c.cfg.ConfirmPollDelay) {
			return confirmExhausted
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		msgs, err := c.sess.FetchRecent(callCtx, c.cfg.TargetBot, c.cfg.PollWindow)
		cancel()
		if err != nil {
			// Abort immediately: notify once and move to a fresh task so
			// the account cannot stay stuck on this offer.
			c.logger.Error("confirmation poll failed", zap.Error(err), zap.Int("attempt", attempt))
			c.notify("❌ Something went wrong while confirming the task.")
			c.requestNewTask(ctx)
			return confirmExhausted
		}

		for _, msg := range msgs {
			if c.extractor.Classify(msg.Text) != patterns.CategoryCompletionNotice {
				continue
			}
			c.recordCompletion(ctx, msg)
			if settle(ctx, c.cfg.SettleDelay) {
				c.requestNewTask(ctx)
			}
			return confirmCompleted
		}
	}

	c.logger.Warn("confirmation attempts exhausted",
		zap.Int("attempts", c.cfg.MaxConfirmAttempts))
	c.notify("❌ Could not collect the reward for this task, moving on.")
	if settle(ctx, c.cfg.SettleDelay) {
		c.requestNewTask(ctx)
	}
	return confirmExhausted
}
