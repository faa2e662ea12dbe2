package storage

import (
	"context"

	"github.com/xaenox/star-collector/internal/models"
)

// Storage persists accounts, completed tasks and per-account settings. All
// implementations are safe for concurrent use by multiple account units.
type Storage interface {
	// EnsureAccount inserts the account (and default settings) if absent.
	EnsureAccount(ctx context.Context, accountID int64) error
	GetAccount(ctx context.Context, accountID int64) (*models.UserAccount, error)
	SaveSession(ctx context.Context, accountID int64, sessionString string) error
	SavePhone(ctx context.Context, accountID int64, phoneNumber string) error

	// SetAutoCollect flips the auto-collect toggle and the account's active
	// flag together.
	SetAutoCollect(ctx context.Context, accountID int64, enabled bool) error
	SetNotifications(ctx context.Context, accountID int64, enabled bool) error
	GetSettings(ctx context.Context, accountID int64) (*models.UserSettings, error)

	// AddTask records a completed task and adds its reward to the account's
	// durable total. A task with an already-seen (account, dedupe key) pair
	// is ignored; the bool reports whether the row was actually written.
	AddTask(ctx context.Context, task *models.TaskRecord) (bool, error)
	GetStats(ctx context.Context, accountID int64) (*models.AccountStats, error)

	// ActiveAccounts lists accounts with auto-collect on and a stored
	// session, for resume at service start.
	ActiveAccounts(ctx context.Context) ([]*models.UserAccount, error)

	Close() error
}
