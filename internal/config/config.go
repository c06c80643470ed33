package config

import (
	"errors"
	"fmt"
	"os"

	"lendery/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Policy     models.Policy    `yaml:"policy"`
	Tenants    []TenantPolicy   `yaml:"tenants"`
	Items      []models.Item    `yaml:"items"`
	Sweep      SweepConfig      `yaml:"sweep"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// TenantPolicy overrides the default policy for one organization.
type TenantPolicy struct {
	OrgID  int64         `yaml:"org_id"`
	Policy models.Policy `yaml:"policy"`
}

type SweepConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; values referenced from YAML expand below.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Policy.LatePenaltyPerDay < 0 {
		return errors.New("late_penalty_per_day must not be negative")
	}
	if c.Policy.BlacklistDaysPerLateDay < 0 {
		return errors.New("blacklist_days_per_late_day must not be negative")
	}
	return ValidateItems(c.Items)
}

func ValidateItems(items []models.Item) error {
	itemIDs := make(map[int64]bool)
	for _, item := range items {
		if item.ID == 0 {
			return fmt.Errorf("item '%s' has invalid ID 0", item.Name)
		}
		if itemIDs[item.ID] {
			return fmt.Errorf("duplicate item ID found: %d", item.ID)
		}
		if item.TotalCount < 1 {
			return fmt.Errorf("item '%s' must have total_count >= 1", item.Name)
		}
		itemIDs[item.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Policy.HoldWindowHours == 0 {
		c.Policy.HoldWindowHours = models.DefaultHoldWindowHours
	}
	if c.Policy.NotificationWindowHours == 0 {
		c.Policy.NotificationWindowHours = models.DefaultNotificationWindowHours
	}
	if c.Policy.MaxLendingDays == 0 {
		c.Policy.MaxLendingDays = 365
	}
	if c.Sweep.IntervalSeconds == 0 {
		c.Sweep.IntervalSeconds = models.DefaultSweepInterval
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// PolicyFor resolves the enforcement policy for a tenant, falling back to
// the default block. Zero-valued tenant fields inherit the default; a
// tenant cannot opt out of a knob by leaving it unset.
func (c *Config) PolicyFor(orgID int64) models.Policy {
	for _, t := range c.Tenants {
		if t.OrgID == orgID {
			p := t.Policy
			if p.LatePenaltyPerDay == 0 {
				p.LatePenaltyPerDay = c.Policy.LatePenaltyPerDay
			}
			if p.BlacklistDaysPerLateDay == 0 {
				p.BlacklistDaysPerLateDay = c.Policy.BlacklistDaysPerLateDay
			}
			if p.HoldWindowHours == 0 {
				p.HoldWindowHours = c.Policy.HoldWindowHours
			}
			if p.NotificationWindowHours == 0 {
				p.NotificationWindowHours = c.Policy.NotificationWindowHours
			}
			if p.MaxLendingDays == 0 {
				p.MaxLendingDays = c.Policy.MaxLendingDays
			}
			return p
		}
	}
	return c.Policy
}
