package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	API           APIConfig       `toml:"api"`
	Chat          ChatConfig      `toml:"chat"`
	Approvals     ApprovalsConfig `toml:"approvals"`
	Poll          PollConfig      `toml:"poll"`
	Notifications NotifyConfig    `toml:"notifications"`
}

type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type ChatConfig struct {
	AccountIDs []string `toml:"account_ids"`
}

type ApprovalsConfig struct {
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

type PollConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

type NotifyConfig struct {
	Enabled bool `toml:"enabled"`
}

func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000/api",
			TimeoutSeconds: 30,
		},
		Approvals: ApprovalsConfig{
			CacheTTLSeconds: 30,
		},
		Poll: PollConfig{
			IntervalSeconds: 60,
		},
		Notifications: NotifyConfig{
			Enabled: true,
		},
	}
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "adspilot"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// TokenPath is where the bearer credential is persisted between runs.
func TokenPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "token.json"), nil
}

// DBPath is the local history database.
func DBPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "adspilot.db"), nil
}

func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			applyEnvOverrides(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ADSPILOT_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("ADSPILOT_ACCOUNT_IDS"); v != "" {
		cfg.Chat.AccountIDs = strings.Split(v, ",")
	}
}

func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}
