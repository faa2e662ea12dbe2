// Package transport defines the messaging capability the collector runs
// over. The concrete client (MTProto, a test fake) lives behind Dialer and
// Session; the collector only sees this surface.
package transport

import (
	"context"
	"errors"
)

// Typed failures surfaced by join/import actions. Implementations wrap
// these so callers can map them with errors.Is.
var (
	ErrAlreadyParticipant = errors.New("already a participant")
	ErrChannelPrivate     = errors.New("channel is private or does not exist")
	ErrInviteExpired      = errors.New("invite link expired")
	ErrJoinRequestSent    = errors.New("join request sent, awaiting approval")
	ErrFloodWait          = errors.New("flood wait")
	ErrInvalidUsername    = errors.New("invalid or unoccupied username")
	ErrNotAuthorized      = errors.New("session is not authorized")
)

// Credentials identify one end-user account to the transport. Session is an
// opaque blob from the external auth provider.
type Credentials struct {
	AccountID int64
	Session   string
}

// Button is one inline action on a message.
type Button struct {
	Label string
	Data  []byte
}

// Message is an inbound chat message with its inline keyboard, if any.
// Buttons holds the keyboard rows in display order.
type Message struct {
	ID      int
	Text    string
	Buttons [][]Button
}

// Handler receives inbound messages from a subscribed sender.
type Handler func(msg Message)

// Session is one connected account. FetchRecent returns messages newest
// first. All methods honor ctx cancellation.
type Session interface {
	// Subscribe registers fn for every inbound message from sender. One
	// subscription per session is sufficient for the collector.
	Subscribe(sender string, fn Handler) error

	SendText(ctx context.Context, target, text string) error
	FetchRecent(ctx context.Context, target string, limit int) ([]Message, error)
	ClickInlineAction(ctx context.Context, target string, messageID int, data []byte) error

	JoinPublicChannel(ctx context.Context, handle string) error
	ImportInvite(ctx context.Context, inviteHash string) error
	ImportInviteList(ctx context.Context, listHash string) error
	StartBot(ctx context.Context, botHandle string) error

	Close() error
}

// Dialer establishes sessions from stored credentials.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials) (Session, error)
}
