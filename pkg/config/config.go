package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Userbot   UserbotConfig   `mapstructure:"userbot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Collector CollectorConfig `mapstructure:"collector"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

// UserbotConfig carries the MTProto application credentials the end-user
// sessions connect with.
type UserbotConfig struct {
	APIID   int    `mapstructure:"api_id"`
	APIHash string `mapstructure:"api_hash"`
}

type DatabaseConfig struct {
	// Driver selects the backend: postgres, sqlite or memory.
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	// Path is the sqlite database file.
	Path string `mapstructure:"path"`
}

type CollectorConfig struct {
	TargetBot           string        `mapstructure:"target_bot"`
	MaxConfirmAttempts  int           `mapstructure:"max_confirm_attempts"`
	SettleDelay         time.Duration `mapstructure:"settle_delay"`
	ConfirmPollDelay    time.Duration `mapstructure:"confirm_poll_delay"`
	RateLimitBackoff    time.Duration `mapstructure:"rate_limit_backoff"`
	NoTasksBackoff      time.Duration `mapstructure:"no_tasks_backoff"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "collector.db")
	v.SetDefault("collector.target_bot", "@StarsovGamesBot")
	v.SetDefault("collector.max_confirm_attempts", 15)
	v.SetDefault("collector.settle_delay", "2s")
	v.SetDefault("collector.confirm_poll_delay", "3s")
	v.SetDefault("collector.rate_limit_backoff", "5s")
	v.SetDefault("collector.no_tasks_backoff", "120s")
	v.SetDefault("collector.health_check_interval", "300s")
	v.SetDefault("collector.call_timeout", "30s")

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiID := v.GetInt("USERBOT_API_ID"); apiID != 0 {
		config.Userbot.APIID = apiID
	}

	if apiHash := v.GetString("USERBOT_API_HASH"); apiHash != "" {
		config.Userbot.APIHash = apiHash
	}

	if targetBot := v.GetString("TARGET_BOT"); targetBot != "" {
		config.Collector.TargetBot = targetBot
	}

	return &config, nil
}
