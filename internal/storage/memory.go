package storage

import (
	"context"
	"sync"
	"time"

	"github.com/xaenox/star-collector/internal/models"
)

// MemoryStorage keeps everything in maps; used for tests and local runs.
type MemoryStorage struct {
	mu       sync.RWMutex
	accounts map[int64]*models.UserAccount
	settings map[int64]*models.UserSettings
	tasks    []*models.TaskRecord
	seen     map[int64]map[string]struct{}
	nextID   int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		accounts: make(map[int64]*models.UserAccount),
		settings: make(map[int64]*models.UserSettings),
		seen:     make(map[int64]map[string]struct{}),
	}
}

func (s *MemoryStorage) EnsureAccount(ctx context.Context, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(accountID)
	return nil
}

func (s *MemoryStorage) ensureLocked(accountID int64) *models.UserAccount {
	acc, exists := s.accounts[accountID]
	if !exists {
		acc = &models.UserAccount{ID: accountID, CreatedAt: time.Now()}
		s.accounts[accountID] = acc
	}
	if _, exists := s.settings[accountID]; !exists {
		s.settings[accountID] = &models.UserSettings{AccountID: accountID, Notifications: true}
	}
	return acc
}

func (s *MemoryStorage) GetAccount(ctx context.Context, accountID int64) (*models.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, exists := s.accounts[accountID]
	if !exists {
		return nil, nil
	}
	cp := *acc
	return &cp, nil
}

func (s *MemoryStorage) SaveSession(ctx context.Context, accountID int64, sessionString string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.ensureLocked(accountID)
	acc.SessionString = sessionString
	acc.LastActivity = time.Now()
	return nil
}

func (s *MemoryStorage) SavePhone(ctx context.Context, accountID int64, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(accountID).PhoneNumber = phoneNumber
	return nil
}

func (s *MemoryStorage) SetAutoCollect(ctx context.Context, accountID int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.ensureLocked(accountID)
	acc.IsActive = enabled
	acc.LastActivity = time.Now()
	s.settings[accountID].AutoCollect = enabled
	return nil
}

func (s *MemoryStorage) SetNotifications(ctx context.Context, accountID int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(accountID)
	s.settings[accountID].Notifications = enabled
	return nil
}

func (s *MemoryStorage) GetSettings(ctx context.Context, accountID int64) (*models.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, exists := s.settings[accountID]; exists {
		cp := *st
		return &cp, nil
	}
	return &models.UserSettings{AccountID: accountID, Notifications: true}, nil
}

func (s *MemoryStorage) AddTask(ctx context.Context, task *models.TaskRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, exists := s.seen[task.AccountID]
	if !exists {
		keys = make(map[string]struct{})
		s.seen[task.AccountID] = keys
	}
	if _, dup := keys[task.DedupeKey]; dup {
		return false, nil
	}
	keys[task.DedupeKey] = struct{}{}

	s.nextID++
	cp := *task
	cp.ID = s.nextID
	if cp.CompletedAt.IsZero() {
		cp.CompletedAt = time.Now()
	}
	s.tasks = append(s.tasks, &cp)

	acc := s.ensureLocked(task.AccountID)
	acc.TotalStars += task.Reward
	acc.LastActivity = time.Now()
	return true, nil
}

func (s *MemoryStorage) GetStats(ctx context.Context, accountID int64) (*models.AccountStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.AccountStats{}
	if acc, exists := s.accounts[accountID]; exists {
		stats.TotalStars = acc.TotalStars
	}
	today := time.Now().Truncate(24 * time.Hour)
	for _, t := range s.tasks {
		if t.AccountID != accountID {
			continue
		}
		stats.TotalTasks++
		if !t.CompletedAt.Before(today) {
			stats.TodayTasks++
		}
	}
	return stats, nil
}

func (s *MemoryStorage) ActiveAccounts(ctx context.Context) ([]*models.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var accounts []*models.UserAccount
	for id, st := range s.settings {
		acc, exists := s.accounts[id]
		if !exists || !st.AutoCollect || acc.SessionString == "" {
			continue
		}
		cp := *acc
		accounts = append(accounts, &cp)
	}
	return accounts, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
