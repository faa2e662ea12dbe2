package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/star-collector/internal/patterns"
	"github.com/xaenox/star-collector/internal/storage"
	"github.com/xaenox/star-collector/internal/transport"
)

var (
	// ErrAlreadyActive rejects a second start for an account that is
	// already collecting.
	ErrAlreadyActive = errors.New("collection already active for this account")
	// ErrNotActive reports an idempotent stop: nothing was running.
	ErrNotActive = errors.New("no active collection for this account")
)

// Registry owns the account-to-controller map and every unit's lifecycle.
// It is an explicit object handed to whoever composes the service; there is
// no package-level state.
type Registry struct {
	dialer    transport.Dialer
	store     storage.Storage
	notifier  Notifier
	extractor *patterns.Extractor
	cfg       Config
	logger    *zap.Logger

	mu sync.Mutex
	// units maps account ID to its controller. A nil value reserves the
	// slot while the transport connect is in flight.
	units map[int64]*Controller
}

func NewRegistry(dialer transport.Dialer, store storage.Storage, notifier Notifier,
	extractor *patterns.Extractor, cfg Config, logger *zap.Logger) *Registry {

	return &Registry{
		dialer:    dialer,
		store:     store,
		notifier:  notifier,
		extractor: extractor,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		units:     make(map[int64]*Controller),
	}
}

// StartCollection connects the account's session and starts its unit.
// Starting an already-active account returns ErrAlreadyActive without
// creating a second run-state.
func (r *Registry) StartCollection(ctx context.Context, creds transport.Credentials) error {
	accountID := creds.AccountID

	r.mu.Lock()
	if _, exists := r.units[accountID]; exists {
		r.mu.Unlock()
		return ErrAlreadyActive
	}
	r.units[accountID] = nil // reserve while dialing
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.units, accountID)
		r.mu.Unlock()
	}

	sess, err := r.dialer.Dial(ctx, creds)
	if err != nil {
		release()
		return fmt.Errorf("failed to connect account %d: %w", accountID, err)
	}

	ctrl := newController(accountID, r.cfg, r.extractor, sess, r.store, r.notifier, r.logger)
	if err := ctrl.start(); err != nil {
		if closeErr := sess.Close(); closeErr != nil {
			r.logger.Warn("error closing session after failed start",
				zap.Error(closeErr), zap.Int64("account_id", accountID))
		}
		release()
		return fmt.Errorf("failed to start collection for account %d: %w", accountID, err)
	}

	r.mu.Lock()
	r.units[accountID] = ctrl
	r.mu.Unlock()

	r.logger.Info("started collection", zap.Int64("account_id", accountID))
	return nil
}

// StopCollection stops and forgets an account's unit. The account is
// removed from the registry before teardown runs, so the registry stays
// consistent even if cleanup fails. Idempotent: a second stop returns
// ErrNotActive.
func (r *Registry) StopCollection(accountID int64) error {
	r.mu.Lock()
	ctrl, exists := r.units[accountID]
	if !exists || ctrl == nil {
		r.mu.Unlock()
		return ErrNotActive
	}
	delete(r.units, accountID)
	r.mu.Unlock()

	ctrl.stop()
	r.logger.Info("stopped collection", zap.Int64("account_id", accountID))
	return nil
}

// IsCollecting reports whether the account has a running unit.
func (r *Registry) IsCollecting(accountID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctrl, exists := r.units[accountID]
	return exists && ctrl != nil && ctrl.active.Load()
}

// Running lists the accounts with an active unit.
func (r *Registry) Running() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.units))
	for id, ctrl := range r.units {
		if ctrl != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// TasksCompleted returns the process-lifetime counter for an account, or
// zero when it is not collecting.
func (r *Registry) TasksCompleted(accountID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctrl, exists := r.units[accountID]; exists && ctrl != nil {
		return ctrl.TasksCompleted()
	}
	return 0
}

// Shutdown drains every unit concurrently and waits for them (or ctx).
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	controllers := make([]*Controller, 0, len(r.units))
	for id, ctrl := range r.units {
		if ctrl != nil {
			controllers = append(controllers, ctrl)
		}
		delete(r.units, id)
	}
	r.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, ctrl := range controllers {
		ctrl := ctrl
		g.Go(func() error {
			ctrl.stop()
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
