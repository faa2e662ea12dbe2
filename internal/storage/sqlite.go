package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xaenox/star-collector/internal/models"
)

// sqliteSchema mirrors migrations.sql in sqlite dialect.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    account_id INTEGER PRIMARY KEY,
    phone_number TEXT,
    session_string TEXT NOT NULL DEFAULT '',
    is_active INTEGER NOT NULL DEFAULT 0,
    total_stars REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_activity TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL REFERENCES accounts (account_id),
    task_type TEXT NOT NULL,
    channel_link TEXT NOT NULL DEFAULT '',
    reward REAL NOT NULL,
    dedupe_key TEXT NOT NULL,
    completed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (account_id, dedupe_key)
);

CREATE TABLE IF NOT EXISTS account_settings (
    account_id INTEGER PRIMARY KEY REFERENCES accounts (account_id),
    auto_collect INTEGER NOT NULL DEFAULT 0,
    notifications INTEGER NOT NULL DEFAULT 1
);
`

// SQLiteStorage is the single-file backend; the pure-Go driver keeps the
// binary cgo-free.
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// sqlite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	return &SQLiteStorage{db: db, logger: logger}, nil
}

func (s *SQLiteStorage) EnsureAccount(ctx context.Context, accountID int64) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO accounts (account_id) VALUES (?)`, accountID); err != nil {
		return fmt.Errorf("error ensuring account: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO account_settings (account_id) VALUES (?)`, accountID); err != nil {
		return fmt.Errorf("error ensuring account settings: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetAccount(ctx context.Context, accountID int64) (*models.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, COALESCE(phone_number, ''), session_string, is_active,
		       total_stars, created_at, COALESCE(last_activity, created_at)
		FROM accounts WHERE account_id = ?`, accountID)

	acc := &models.UserAccount{}
	err := row.Scan(&acc.ID, &acc.PhoneNumber, &acc.SessionString, &acc.IsActive,
		&acc.TotalStars, &acc.CreatedAt, &acc.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying account: %w", err)
	}
	return acc, nil
}

func (s *SQLiteStorage) SaveSession(ctx context.Context, accountID int64, sessionString string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET session_string = ?, last_activity = CURRENT_TIMESTAMP
		WHERE account_id = ?`, sessionString, accountID)
	if err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SavePhone(ctx context.Context, accountID int64, phoneNumber string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET phone_number = ? WHERE account_id = ?`, phoneNumber, accountID)
	if err != nil {
		return fmt.Errorf("error saving phone number: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SetAutoCollect(ctx context.Context, accountID int64, enabled bool) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE account_settings SET auto_collect = ? WHERE account_id = ?`, enabled, accountID); err != nil {
		return fmt.Errorf("error setting auto collect: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET is_active = ?, last_activity = CURRENT_TIMESTAMP
		WHERE account_id = ?`, enabled, accountID); err != nil {
		return fmt.Errorf("error setting account active flag: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SetNotifications(ctx context.Context, accountID int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE account_settings SET notifications = ? WHERE account_id = ?`, enabled, accountID)
	if err != nil {
		return fmt.Errorf("error setting notifications: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetSettings(ctx context.Context, accountID int64) (*models.UserSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, auto_collect, notifications
		FROM account_settings WHERE account_id = ?`, accountID)

	st := &models.UserSettings{}
	err := row.Scan(&st.AccountID, &st.AutoCollect, &st.Notifications)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.UserSettings{AccountID: accountID, Notifications: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying settings: %w", err)
	}
	return st, nil
}

func (s *SQLiteStorage) AddTask(ctx context.Context, task *models.TaskRecord) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO tasks (account_id, task_type, channel_link, reward, dedupe_key)
		VALUES (?, ?, ?, ?, ?)`,
		task.AccountID, task.TaskType, task.ChannelLink, task.Reward, task.DedupeKey)
	if err != nil {
		return false, fmt.Errorf("error inserting task: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	if inserted == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET total_stars = total_stars + ?, last_activity = CURRENT_TIMESTAMP
		WHERE account_id = ?`, task.Reward, task.AccountID); err != nil {
		return false, fmt.Errorf("error updating total stars: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("error committing task: %w", err)
	}
	return true, nil
}

func (s *SQLiteStorage) GetStats(ctx context.Context, accountID int64) (*models.AccountStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT total_stars,
		       (SELECT COUNT(*) FROM tasks WHERE account_id = ?1),
		       (SELECT COUNT(*) FROM tasks WHERE account_id = ?1
		          AND DATE(completed_at) = DATE('now'))
		FROM accounts WHERE account_id = ?1`, accountID)

	stats := &models.AccountStats{}
	err := row.Scan(&stats.TotalStars, &stats.TotalTasks, &stats.TodayTasks)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.AccountStats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying stats: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStorage) ActiveAccounts(ctx context.Context) ([]*models.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.account_id, COALESCE(a.phone_number, ''), a.session_string,
		       a.is_active, a.total_stars, a.created_at,
		       COALESCE(a.last_activity, a.created_at)
		FROM accounts a
		JOIN account_settings s ON s.account_id = a.account_id
		WHERE s.auto_collect AND a.session_string <> ''`)
	if err != nil {
		return nil, fmt.Errorf("error querying active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.UserAccount
	for rows.Next() {
		acc := &models.UserAccount{}
		if err := rows.Scan(&acc.ID, &acc.PhoneNumber, &acc.SessionString, &acc.IsActive,
			&acc.TotalStars, &acc.CreatedAt, &acc.LastActivity); err != nil {
			return nil, fmt.Errorf("error scanning account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
