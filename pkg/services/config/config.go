package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
)

type AccountConfig struct {
	Name           string `mapstructure:"name" validate:"required"`
	Provider       string `mapstructure:"provider" validate:"required"`
	Region         string `mapstructure:"region"`
	Profile        string `mapstructure:"profile"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

type EngineConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	ControlTimeout time.Duration `mapstructure:"control_timeout"`
}

type EvidenceConfig struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
}

type StorageConfig struct {
	DbPath string `mapstructure:"db_path"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	Accounts []AccountConfig `mapstructure:"accounts"`
	Engine   EngineConfig    `mapstructure:"engine"`
	Evidence EvidenceConfig  `mapstructure:"evidence"`
	Storage  StorageConfig   `mapstructure:"storage"`
	Server   ServerConfig    `mapstructure:"server"`
}

// LoadConfig loads configuration from the specified file path
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("engine.max_concurrency", 5)
	v.SetDefault("engine.control_timeout", "2m")
	v.SetDefault("storage.db_path", "cloud-sentry.db")
	v.SetDefault("server.addr", ":8080")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("config declares no accounts")
	}
	for _, acc := range cfg.Accounts {
		if acc.Name == "" || acc.Provider == "" {
			return nil, fmt.Errorf("every account needs a name and a provider")
		}
	}
	return &cfg, nil
}

// GetAccount resolves one configured account by name.
func (c *Config) GetAccount(name string) (domain.Account, error) {
	for _, acc := range c.Accounts {
		if acc.Name == name {
			return domain.Account{
				Name:           acc.Name,
				Provider:       acc.Provider,
				Region:         acc.Region,
				Profile:        acc.Profile,
				SubscriptionID: acc.SubscriptionID,
			}, nil
		}
	}
	return domain.Account{}, fmt.Errorf("account %q: %w", name, domain.ErrNotFound)
}

// GetAccounts returns all configured accounts.
func (c *Config) GetAccounts() []domain.Account {
	out := make([]domain.Account, 0, len(c.Accounts))
	for _, acc := range c.Accounts {
		out = append(out, domain.Account{
			Name:           acc.Name,
			Provider:       acc.Provider,
			Region:         acc.Region,
			Profile:        acc.Profile,
			SubscriptionID: acc.SubscriptionID,
		})
	}
	return out
}
