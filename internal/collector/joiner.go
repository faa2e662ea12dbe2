package collector

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/star-collector/internal/patterns"
	"github.com/xaenox/star-collector/internal/transport"
)

// JoinOutcome is the tri-state result of a channel-join attempt. Pending
// means the join needs admin approval; the task cannot complete and wants
// the skip recovery, not a retry.
type JoinOutcome int

const (
	JoinFailed JoinOutcome = iota
	JoinPending
	Joined
)

func (o JoinOutcome) String() string {
	switch o {
	case Joined:
		return "joined"
	case JoinPending:
		return "pending"
	default:
		return "failed"
	}
}

// Joiner resolves a channel reference into the matching transport action.
// It never sleeps on flood waits; backing off is the caller's job.
type Joiner struct {
	cfg    Config
	logger *zap.Logger
}

func NewJoiner(cfg Config, logger *zap.Logger) *Joiner {
	return &Joiner{cfg: cfg.withDefaults(), logger: logger}
}

func (j *Joiner) Join(ctx context.Context, sess transport.Session, ref *patterns.ChannelReference) JoinOutcome {
	var err error
	switch ref.Kind {
	case patterns.KindChannelList:
		err = j.call(ctx, func(ctx context.Context) error {
			return sess.ImportInviteList(ctx, ref.Value)
		})
	case patterns.KindSubBot:
		return j.startSubBot(ctx, sess, ref.Value)
	case patterns.KindPrivateInvite:
		err = j.call(ctx, func(ctx context.Context) error {
			return sess.ImportInvite(ctx, ref.Value)
		})
	default:
		err = j.call(ctx, func(ctx context.Context) error {
			return sess.JoinPublicChannel(ctx, ref.Value)
		})
	}
	return j.outcome(err, ref)
}

func (j *Joiner) outcome(err error, ref *patterns.ChannelReference) JoinOutcome {
	switch {
	case err == nil:
		j.logger.Info("joined channel",
			zap.String("kind", string(ref.Kind)),
			zap.String("link", ref.Link))
		return Joined
	case errors.Is(err, transport.ErrAlreadyParticipant):
		j.logger.Info("already a member", zap.String("link", ref.Link))
		return Joined
	case errors.Is(err, transport.ErrJoinRequestSent) || isPendingText(err):
		j.logger.Info("join request sent, needs approval", zap.String("link", ref.Link))
		return JoinPending
	case errors.Is(err, transport.ErrChannelPrivate):
		j.logger.Warn("channel is private or does not exist", zap.String("link", ref.Link))
	case errors.Is(err, transport.ErrInviteExpired):
		j.logger.Warn("invite link expired", zap.String("link", ref.Link))
	case errors.Is(err, transport.ErrFloodWait):
		j.logger.Warn("flood wait while joining", zap.String("link", ref.Link))
	case errors.Is(err, transport.ErrInvalidUsername):
		j.logger.Warn("invalid channel username", zap.String("link", ref.Link))
	default:
		j.logger.Error("failed to join channel",
			zap.Error(err),
			zap.String("kind", string(ref.Kind)),
			zap.String("link", ref.Link))
	}
	return JoinFailed
}

// Some transports surface pending approval as a soft error rather than a
// distinct status.
func isPendingText(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "successfully requested to join") ||
		strings.Contains(msg, "join request sent")
}

// startSubBot runs the sub-bot task shape: send /start, then best-effort
// click the bot's first inline button. There is no confirmation step after
// a sub-bot start, so no error past the start command fails the task.
func (j *Joiner) startSubBot(ctx context.Context, sess transport.Session, botHandle string) JoinOutcome {
	j.logger.Info("starting sub-bot", zap.String("bot", botHandle))

	err := j.call(ctx, func(ctx context.Context) error {
		return sess.StartBot(ctx, botHandle)
	})
	if err != nil {
		j.logger.Error("failed to start sub-bot", zap.Error(err), zap.String("bot", botHandle))
		return JoinFailed
	}

	if !settle(ctx, j.cfg.SettleDelay) {
		return JoinFailed
	}

	msgs, err := j.fetch(ctx, sess, botHandle)
	if err != nil {
		j.logger.Warn("could not fetch sub-bot messages", zap.Error(err), zap.String("bot", botHandle))
		return Joined
	}
	for _, msg := range msgs {
		for _, row := range msg.Buttons {
			for _, btn := range row {
				clickErr := j.call(ctx, func(ctx context.Context) error {
					return sess.ClickInlineAction(ctx, botHandle, msg.ID, btn.Data)
				})
				if clickErr != nil {
					j.logger.Warn("failed to click sub-bot button",
						zap.Error(clickErr), zap.String("bot", botHandle))
					continue
				}
				j.logger.Info("clicked sub-bot button",
					zap.String("bot", botHandle), zap.String("label", btn.Label))
				return Joined
			}
		}
	}
	return Joined
}

func (j *Joiner) fetch(ctx context.Context, sess transport.Session, target string) ([]transport.Message, error) {
	callCtx, cancel := context.WithTimeout(ctx, j.cfg.CallTimeout)
	defer cancel()
	return sess.FetchRecent(callCtx, target, j.cfg.PollWindow)
}

func (j *Joiner) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, j.cfg.CallTimeout)
	defer cancel()
	return fn(callCtx)
}
