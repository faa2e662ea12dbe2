package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/star-collector/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	s := &PostgresStorage{db: db, logger: logger}
	if err := s.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}
	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) EnsureAccount(ctx context.Context, accountID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (account_id) VALUES ($1)
		ON CONFLICT (account_id) DO NOTHING`, accountID)
	if err != nil {
		return fmt.Errorf("error ensuring account: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO account_settings (account_id) VALUES ($1)
		ON CONFLICT (account_id) DO NOTHING`, accountID)
	if err != nil {
		return fmt.Errorf("error ensuring account settings: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetAccount(ctx context.Context, accountID int64) (*models.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, COALESCE(phone_number, ''), session_string, is_active,
		       total_stars, created_at, COALESCE(last_activity, created_at)
		FROM accounts WHERE account_id = $1`, accountID)

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

func (s *PostgresStorage) SaveSession(ctx context.Context, accountID int64, sessionString string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET session_string = $1, last_activity = NOW()
		WHERE account_id = $2`, sessionString, accountID)
	if err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SavePhone(ctx context.Context, accountID int64, phoneNumber string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET phone_number = $1 WHERE account_id = $2`, phoneNumber, accountID)
	if err != nil {
		return fmt.Errorf("error saving phone number: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SetAutoCollect(ctx context.Context, accountID int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE account_settings SET auto_collect = $1 WHERE account_id = $2`, enabled, accountID)
	if err != nil {
		return fmt.Errorf("error setting auto collect: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE accounts SET is_active = $1, last_activity = NOW()
		WHERE account_id = $2`, enabled, accountID)
	if err != nil {
		return fmt.Errorf("error setting account active flag: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SetNotifications(ctx context.Context, accountID int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE account_settings SET notifications = $1 WHERE account_id = $2`, enabled, accountID)
	if err != nil {
		return fmt.Errorf("error setting notifications: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetSettings(ctx context.Context, accountID int64) (*models.UserSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, auto_collect, notifications
		FROM account_settings WHERE account_id = $1`, accountID)

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

func (s *PostgresStorage) AddTask(ctx context.Context, task *models.TaskRecord) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (account_id, task_type, channel_link, reward, dedupe_key)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, dedupe_key) DO NOTHING`,
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

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET total_stars = total_stars + $1, last_activity = NOW()
		WHERE account_id = $2`, task.Reward, task.AccountID)
	if err != nil {
		return false, fmt.Errorf("error updating total stars: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("error committing task: %w", err)
	}
	return true, nil
}

func (s *PostgresStorage) GetStats(ctx context.Context, accountID int64) (*models.AccountStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT total_stars,
		       (SELECT COUNT(*) FROM tasks WHERE account_id = $1),
		       (SELECT COUNT(*) FROM tasks WHERE account_id = $1
		          AND completed_at::date = CURRENT_DATE)
		FROM accounts WHERE account_id = $1`, accountID)

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

func (s *PostgresStorage) ActiveAccounts(ctx context.Context) ([]*models.UserAccount, error) {
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

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
