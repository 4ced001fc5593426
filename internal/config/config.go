package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "onboard"
	dbFileName = "onboard.db"

	DefaultPollInterval      = 300 * time.Second
	DefaultBackboardBaseURL  = "https://app.backboard.io/api"
	DefaultBackboardTimeout  = 120 * time.Second
	DefaultTelegramBaseURL   = "https://api.telegram.org"
	DefaultTelegramPollWait  = 30 * time.Second
	DefaultServerAddr        = "127.0.0.1:8000"
	DefaultCredentialsFile   = "credentials.json"
	DefaultTokenFile         = "token.json"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	envConfigDir             = "ONBOARD_CONFIG_DIR"
	envDataDir               = "ONBOARD_DATA_DIR"
	envEncryptionKey         = "ENCRYPTION_KEY"
	envBotToken              = "BOT_TOKEN"
	envBackboardBaseURL      = "BACKBOARD_BASE_URL"
	envDriveClientID         = "ONBOARD_DRIVE_CLIENT_ID"
	envServerAddr            = "ONBOARD_SERVER_ADDR"
	envServerAPIKey          = "ONBOARD_SERVER_API_KEY"
	envLogLevel              = "ONBOARD_LOG_LEVEL"
	defaultConfigFileName    = "config.yaml"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Config is the full application configuration.
type Config struct {
	Database      DatabaseConfig  `yaml:"database"`
	Backboard     BackboardConfig `yaml:"backboard"`
	Drive         DriveConfig     `yaml:"drive"`
	Telegram      TelegramConfig  `yaml:"telegram"`
	Server        ServerConfig    `yaml:"server"`
	Logging       LoggingConfig   `yaml:"logging"`
	EncryptionKey string          `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackboardConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DriveConfig lists the documents watched by the poller and where OAuth material lives.
type DriveConfig struct {
	CredentialsFile string        `yaml:"credentials_file"`
	TokenFile       string        `yaml:"token_file"`
	ClientID        string        `yaml:"client_id"` // onboard client the documents are forwarded for
	FileIDs         []string      `yaml:"file_ids"`
	PollInterval    time.Duration `yaml:"poll_interval"`
}

type TelegramConfig struct {
	BotToken    string        `yaml:"bot_token"`
	BaseURL     string        `yaml:"base_url"`
	ClientID    string        `yaml:"client_id"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

type ServerConfig struct {
	Addr   string `yaml:"addr"`
	APIKey string `yaml:"api_key"` // optional; required as X-API-Key or bearer token when set
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GetConfigDir returns the directory holding config.yaml.
func GetConfigDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(envConfigDir)); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user config dir: %w", err)
	}
	return filepath.Join(base, appName), nil
}

// GetDataDir returns the directory holding the database.
func GetDataDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(envDataDir)); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

// DefaultPath returns the config file path used when --config is not given.
func DefaultPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultConfigFileName), nil
}

// Load reads the YAML config at path, expanding ${VAR} references.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(expandEnvString(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets the environment variables used by the original deployment override the file.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(envEncryptionKey)); v != "" {
		c.EncryptionKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envBotToken)); v != "" {
		c.Telegram.BotToken = v
	}
	if v := strings.TrimSpace(os.Getenv(envBackboardBaseURL)); v != "" {
		c.Backboard.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envDriveClientID)); v != "" {
		c.Drive.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv(envServerAddr)); v != "" {
		c.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(envServerAPIKey)); v != "" {
		c.Server.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envLogLevel)); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) applyDefaults() error {
	if c.Database.Path == "" {
		dataDir, err := GetDataDir()
		if err != nil {
			return err
		}
		c.Database.Path = filepath.Join(dataDir, dbFileName)
	}
	if c.Backboard.BaseURL == "" {
		c.Backboard.BaseURL = DefaultBackboardBaseURL
	}
	if c.Backboard.Timeout <= 0 {
		c.Backboard.Timeout = DefaultBackboardTimeout
	}
	if c.Drive.CredentialsFile == "" {
		c.Drive.CredentialsFile = DefaultCredentialsFile
	}
	if c.Drive.TokenFile == "" {
		c.Drive.TokenFile = DefaultTokenFile
	}
	if c.Drive.PollInterval <= 0 {
		c.Drive.PollInterval = DefaultPollInterval
	}
	if c.Telegram.BaseURL == "" {
		c.Telegram.BaseURL = DefaultTelegramBaseURL
	}
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = DefaultTelegramPollWait
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	return nil
}

// expandEnvString replaces ${VAR} with the host environment value.
func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}
