// Package mtproto implements transport.Dialer over MTProto, so the
// collector drives real end-user sessions rather than a bot API login.
package mtproto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/xaenox/star-collector/internal/transport"
)

const dialTimeout = 30 * time.Second

type Dialer struct {
	apiID   int
	apiHash string
	logger  *zap.Logger
}

func NewDialer(apiID int, apiHash string, logger *zap.Logger) *Dialer {
	return &Dialer{apiID: apiID, apiHash: apiHash, logger: logger}
}

// Dial starts the client in a background goroutine and blocks until it is
// connected and authorized (or ctx/timeout fires). The session blob must be
// a gotd session produced by the auth provider.
func (d *Dialer) Dial(ctx context.Context, creds transport.Credentials) (transport.Session, error) {
	storage := new(session.StorageMemory)
	if err := storage.StoreSession(ctx, []byte(creds.Session)); err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	s := &userSession{
		logger: d.logger.With(zap.Int64("account_id", creds.AccountID)),
		peers:  make(map[string]tg.InputPeerClass),
		done:   make(chan struct{}),
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(s.onNewMessage)

	client := telegram.NewClient(d.apiID, d.apiHash, telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  dispatcher,
		Logger:         d.logger.Named("mtproto"),
	})
	s.api = client.API()

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	ready := make(chan error, 1)
	go func() {
		defer close(s.done)
		err := client.Run(runCtx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				ready <- err
				return err
			}
			if !status.Authorized {
				ready <- transport.ErrNotAuthorized
				return transport.ErrNotAuthorized
			}
			ready <- nil
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil && runCtx.Err() == nil {
			s.logger.Warn("mtproto client stopped", zap.Error(err))
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			<-s.done
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
	case <-ctx.Done():
		cancel()
		<-s.done
		return nil, ctx.Err()
	case <-time.After(dialTimeout):
		cancel()
		<-s.done
		return nil, fmt.Errorf("failed to connect: timed out after %s", dialTimeout)
	}
	return s, nil
}

type userSession struct {
	api    *tg.Client
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger

	mu    sync.Mutex
	peers map[string]tg.InputPeerClass

	subMu     sync.Mutex
	subUserID int64
	handler   transport.Handler
}

func (s *userSession) Subscribe(sender string, fn transport.Handler) error {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	peer, err := s.resolvePeer(ctx, sender)
	if err != nil {
		return fmt.Errorf("failed to resolve sender %s: %w", sender, err)
	}
	user, ok := peer.(*tg.InputPeerUser)
	if !ok {
		return fmt.Errorf("sender %s is not a user peer", sender)
	}

	s.subMu.Lock()
	s.subUserID = user.UserID
	s.handler = fn
	s.subMu.Unlock()
	return nil
}

func (s *userSession) onNewMessage(ctx context.Context, e tg.Entities, update *tg.UpdateNewMessage) error {
	msg, ok := update.Message.(*tg.Message)
	if !ok || msg.Out {
		return nil
	}
	peer, ok := msg.PeerID.(*tg.PeerUser)
	if !ok {
		return nil
	}

	s.subMu.Lock()
	userID, handler := s.subUserID, s.handler
	s.subMu.Unlock()
	if handler == nil || peer.UserID != userID {
		return nil
	}

	// Hand off so a slow handler never blocks update delivery.
	go handler(convertMessage(msg))
	return nil
}

func (s *userSession) SendText(ctx context.Context, target, text string) error {
	peer, err := s.resolvePeer(ctx, target)
	if err != nil {
		return err
	}
	randomID, err := randomID()
	if err != nil {
		return err
	}
	_, err = s.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: randomID,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", target, err)
	}
	return nil
}

// FetchRecent returns the target chat's history, newest first.
func (s *userSession) FetchRecent(ctx context.Context, target string, limit int) ([]transport.Message, error) {
	peer, err := s.resolvePeer(ctx, target)
	if err != nil {
		return nil, err
	}
	res, err := s.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  peer,
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history of %s: %w", target, err)
	}
	modified, ok := res.AsModified()
	if !ok {
		return nil, nil
	}

	var out []transport.Message
	for _, m := range modified.GetMessages() {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, convertMessage(msg))
	}
	return out, nil
}

func (s *userSession) ClickInlineAction(ctx context.Context, target string, messageID int, data []byte) error {
	peer, err := s.resolvePeer(ctx, target)
	if err != nil {
		return err
	}
	req := &tg.MessagesGetBotCallbackAnswerRequest{
		Peer:  peer,
		MsgID: messageID,
	}
	req.SetData(data)
	if _, err := s.api.MessagesGetBotCallbackAnswer(ctx, req); err != nil {
		return fmt.Errorf("failed to click button in %s: %w", target, err)
	}
	return nil
}

func (s *userSession) JoinPublicChannel(ctx context.Context, handle string) error {
	peer, err := s.resolvePeer(ctx, handle)
	if err != nil {
		return mapActionError(err)
	}
	channel, ok := peer.(*tg.InputPeerChannel)
	if !ok {
		return fmt.Errorf("%w: %s is not a channel", transport.ErrInvalidUsername, handle)
	}
	_, err = s.api.ChannelsJoinChannel(ctx, &tg.InputChannel{
		ChannelID:  channel.ChannelID,
		AccessHash: channel.AccessHash,
	})
	return mapActionError(err)
}

func (s *userSession) ImportInvite(ctx context.Context, inviteHash string) error {
	_, err := s.api.MessagesImportChatInvite(ctx, inviteHash)
	return mapActionError(err)
}

// Invite lists ride the same import flow as single invites.
func (s *userSession) ImportInviteList(ctx context.Context, listHash string) error {
	_, err := s.api.MessagesImportChatInvite(ctx, listHash)
	return mapActionError(err)
}

func (s *userSession) StartBot(ctx context.Context, botHandle string) error {
	return s.SendText(ctx, botHandle, "/start")
}

func (s *userSession) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *userSession) resolvePeer(ctx context.Context, target string) (tg.InputPeerClass, error) {
	username := strings.ToLower(strings.TrimPrefix(target, "@"))

	s.mu.Lock()
	if peer, ok := s.peers[username]; ok {
		s.mu.Unlock()
		return peer, nil
	}
	s.mu.Unlock()

	resolved, err := s.api.ContactsResolveUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", target, err)
	}

	var peer tg.InputPeerClass
	switch p := resolved.Peer.(type) {
	case *tg.PeerUser:
		for _, u := range resolved.Users {
			if user, ok := u.(*tg.User); ok && user.ID == p.UserID {
				peer = &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
			}
		}
	case *tg.PeerChannel:
		for _, c := range resolved.Chats {
			if channel, ok := c.(*tg.Channel); ok && channel.ID == p.ChannelID {
				peer = &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}
			}
		}
	}
	if peer == nil {
		return nil, fmt.Errorf("%w: %s", transport.ErrInvalidUsername, target)
	}

	s.mu.Lock()
	s.peers[username] = peer
	s.mu.Unlock()
	return peer, nil
}

func convertMessage(msg *tg.Message) transport.Message {
	out := transport.Message{ID: msg.ID, Text: msg.Message}
	markup, ok := msg.GetReplyMarkup()
	if !ok {
		return out
	}
	inline, ok := markup.(*tg.ReplyInlineMarkup)
	if !ok {
		return out
	}
	for _, row := range inline.Rows {
		var buttons []transport.Button
		for _, b := range row.Buttons {
			if cb, ok := b.(*tg.KeyboardButtonCallback); ok {
				buttons = append(buttons, transport.Button{Label: cb.Text, Data: cb.Data})
			}
		}
		if len(buttons) > 0 {
			out.Buttons = append(out.Buttons, buttons)
		}
	}
	return out
}

// mapActionError folds MTProto error codes into the transport taxonomy so
// the join orchestrator can branch with errors.Is.
func mapActionError(err error) error {
	switch {
	case err == nil:
		return nil
	case tgerr.Is(err, "USER_ALREADY_PARTICIPANT"):
		return fmt.Errorf("%w: %s", transport.ErrAlreadyParticipant, err)
	case tgerr.Is(err, "CHANNEL_PRIVATE", "CHANNELS_TOO_MUCH"):
		return fmt.Errorf("%w: %s", transport.ErrChannelPrivate, err)
	case tgerr.Is(err, "INVITE_HASH_EXPIRED", "INVITE_HASH_INVALID"):
		return fmt.Errorf("%w: %s", transport.ErrInviteExpired, err)
	case tgerr.Is(err, "INVITE_REQUEST_SENT"):
		return fmt.Errorf("%w: %s", transport.ErrJoinRequestSent, err)
	case tgerr.Is(err, "FLOOD_WAIT"):
		return fmt.Errorf("%w: %s", transport.ErrFloodWait, err)
	case tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID"):
		return fmt.Errorf("%w: %s", transport.ErrInvalidUsername, err)
	default:
		return err
	}
}

func randomID() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to generate random id: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}
