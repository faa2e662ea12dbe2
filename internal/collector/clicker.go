package collector

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/star-collector/internal/transport"
)

// Clicker locates and activates inline buttons on the remote bot's recent
// messages. When no button matches it falls back to plain-text commands;
// that path reports success optimistically, so callers must re-verify
// through subsequent classification rather than trust the return value.
type Clicker struct {
	cfg    Config
	logger *zap.Logger
}

func NewClicker(cfg Config, logger *zap.Logger) *Clicker {
	return &Clicker{cfg: cfg.withDefaults(), logger: logger}
}

// Click activates the first button whose label contains any keyword
// (case-insensitive), scanning the last few messages in order. First match
// wins.
func (c *Clicker) Click(ctx context.Context, sess transport.Session, keywords, fallbacks []string) bool {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	msgs, err := sess.FetchRecent(callCtx, c.cfg.TargetBot, c.cfg.ClickWindow)
	cancel()
	if err != nil {
		c.logger.Warn("failed to fetch messages for button scan", zap.Error(err))
		return false
	}

	for _, msg := range msgs {
		for _, row := range msg.Buttons {
			for _, btn := range row {
				if !labelMatches(btn.Label, keywords) {
					continue
				}
				callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
				err := sess.ClickInlineAction(callCtx, c.cfg.TargetBot, msg.ID, btn.Data)
				cancel()
				if err != nil {
					c.logger.Warn("failed to click button",
						zap.Error(err), zap.String("label", btn.Label))
					return false
				}
				c.logger.Info("clicked button", zap.String("label", btn.Label))
				return true
			}
		}
	}

	c.logger.Info("no matching button found, sending fallback commands")
	for i, cmd := range fallbacks {
		if i > 0 && !settle(ctx, c.cfg.FallbackGap) {
			return false
		}
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		err := sess.SendText(callCtx, c.cfg.TargetBot, cmd)
		cancel()
		if err != nil {
			c.logger.Warn("failed to send fallback command",
				zap.Error(err), zap.String("command", cmd))
			return false
		}
	}
	return true
}

func labelMatches(label string, keywords []string) bool {
	lower := strings.ToLower(label)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
