// Package collector implements the per-account task-automation engine: it
// classifies messages from the remote task bot, joins the offered channels,
// retries the confirmation click and records earned rewards.
package collector

import (
	"context"
	"time"
)

// Config holds the engine's tunables. Zero values are replaced by the
// defaults matching the remote bot's observed timing.
type Config struct {
	// TargetBot is the remote task bot's handle, e.g. "@StarsovGamesBot".
	TargetBot string

	MaxConfirmAttempts int

	// SettleDelay is the short pause after an action before the remote
	// bot's state is polled again.
	SettleDelay time.Duration
	// ConfirmPollDelay separates a confirmation click from the completion
	// poll.
	ConfirmPollDelay time.Duration
	// FallbackGap separates the plain-text fallback commands.
	FallbackGap time.Duration

	RateLimitBackoff    time.Duration
	NoTasksBackoff      time.Duration
	HealthCheckInterval time.Duration

	// CallTimeout bounds each transport round-trip so a hung call cannot
	// leak an account unit.
	CallTimeout time.Duration

	// ClickWindow is how many recent messages are scanned for inline
	// buttons; PollWindow how many are classified per completion poll.
	ClickWindow int
	PollWindow  int
}

func (c Config) withDefaults() Config {
	if c.MaxConfirmAttempts == 0 {
		c.MaxConfirmAttempts = 15
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.ConfirmPollDelay == 0 {
		c.ConfirmPollDelay = 3 * time.Second
	}
	if c.FallbackGap == 0 {
		c.FallbackGap = 500 * time.Millisecond
	}
	if c.RateLimitBackoff == 0 {
		c.RateLimitBackoff = 5 * time.Second
	}
	if c.NoTasksBackoff == 0 {
		c.NoTasksBackoff = 120 * time.Second
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 5 * time.Minute
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.ClickWindow == 0 {
		c.ClickWindow = 5
	}
	if c.PollWindow == 0 {
		c.PollWindow = 3
	}
	return c
}

// Notifier delivers human-readable status text to an account owner.
// Delivery failures are the implementation's problem; callers fire and
// forget.
type Notifier interface {
	Notify(accountID int64, text string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(accountID int64, text string)

func (f NotifierFunc) Notify(accountID int64, text string) { f(accountID, text) }

// settle sleeps for d or until ctx is done; it reports whether the full
// delay elapsed.
func settle(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
