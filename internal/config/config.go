package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Panel     PanelConfig     `yaml:"panel"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
}

// APIConfig contains ops API configuration.
type APIConfig struct {
	Enabled bool       `yaml:"enabled"`
	Auth    AuthConfig `yaml:"auth"`
}

// AuthConfig contains authentication configuration for the ops API.
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
}

// PanelConfig contains remote panel client configuration.
type PanelConfig struct {
	BaseURL      string        `yaml:"base_url"`
	AdminPath    string        `yaml:"admin_path"`
	APIKey       string        `yaml:"api_key"`
	APIKeyHeader string        `yaml:"api_key_header"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryCount   int           `yaml:"retry_count"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	// Timezone is the fixed civil timezone the panel reports timestamps in.
	// Day boundaries and scheduling times are computed in this zone.
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig contains recurring job configuration.
type SchedulerConfig struct {
	TickInterval      time.Duration      `yaml:"tick_interval"`
	ReportTime        string             `yaml:"report_time"`        // civil "HH:MM"
	BackupReportTime  string             `yaml:"backup_report_time"` // early second nightly run
	ExpiryWarningTime string             `yaml:"expiry_warning_time"`
	ExpiryWarningDays int                `yaml:"expiry_warning_days"`
	UsageWarnings     UsageWarningConfig `yaml:"usage_warnings"`
	OnlineReportHours int                `yaml:"online_report_hours"`
	Birthday          BirthdayConfig     `yaml:"birthday"`
	VacuumTime        string             `yaml:"vacuum_time"`
}

// UsageWarningConfig gates and tunes the usage-threshold warning job.
type UsageWarningConfig struct {
	Enabled          bool    `yaml:"enabled"`
	ThresholdPercent float64 `yaml:"threshold_percent"`
	CheckHours       int     `yaml:"check_hours"`
}

// BirthdayConfig tunes the daily birthday gift job.
type BirthdayConfig struct {
	Time     string  `yaml:"time"`
	GiftGB   float64 `yaml:"gift_gb"`
	GiftDays int     `yaml:"gift_days"`
}

// TelegramConfig contains notification transport configuration.
type TelegramConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BotToken     string        `yaml:"bot_token"`
	AdminChatIDs []int64       `yaml:"admin_chat_ids"`
	SendDelay    time.Duration `yaml:"send_delay"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 0 and 65535, got %d", c.Server.HTTPPort)
	}
	if c.Panel.BaseURL == "" {
		return fmt.Errorf("panel.base_url is required")
	}
	if c.Panel.Timezone != "" {
		if _, err := time.LoadLocation(c.Panel.Timezone); err != nil {
			return fmt.Errorf("panel.timezone %q is not a valid IANA zone: %w", c.Panel.Timezone, err)
		}
	}
	if c.Panel.Timeout < 0 {
		return fmt.Errorf("panel.timeout must not be negative")
	}
	if c.Panel.CacheTTL < 0 {
		return fmt.Errorf("panel.cache_ttl must not be negative")
	}
	if c.Scheduler.TickInterval < 0 {
		return fmt.Errorf("scheduler.tick_interval must not be negative")
	}
	for _, field := range []struct{ name, value string }{
		{"scheduler.report_time", c.Scheduler.ReportTime},
		{"scheduler.backup_report_time", c.Scheduler.BackupReportTime},
		{"scheduler.expiry_warning_time", c.Scheduler.ExpiryWarningTime},
		{"scheduler.birthday.time", c.Scheduler.Birthday.Time},
		{"scheduler.vacuum_time", c.Scheduler.VacuumTime},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.Parse("15:04", field.value); err != nil {
			return fmt.Errorf("%s must be HH:MM, got %q", field.name, field.value)
		}
	}
	if t := c.Scheduler.UsageWarnings.ThresholdPercent; t < 0 || t > 100 {
		return fmt.Errorf("scheduler.usage_warnings.threshold_percent must be between 0 and 100, got %g", t)
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}
	return nil
}

// Location returns the configured civil timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.Panel.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Panel.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// applyDefaults fills zero values with production defaults.
func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8412
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "json"
	}
	if c.API.Auth.HeaderName == "" {
		c.API.Auth.HeaderName = "X-API-Key"
	}
	if c.Panel.APIKeyHeader == "" {
		c.Panel.APIKeyHeader = "Panel-API-Key"
	}
	if c.Panel.Timeout == 0 {
		c.Panel.Timeout = 10 * time.Second
	}
	if c.Panel.RetryCount == 0 {
		c.Panel.RetryCount = 3
	}
	if c.Panel.RetryBackoff == 0 {
		c.Panel.RetryBackoff = 500 * time.Millisecond
	}
	if c.Panel.CacheTTL == 0 {
		c.Panel.CacheTTL = 60 * time.Second
	}
	if c.Panel.Timezone == "" {
		c.Panel.Timezone = "Asia/Tehran"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/bandwatch.db"
	}
	if c.Scheduler.TickInterval == 0 {
		c.Scheduler.TickInterval = time.Minute
	}
	if c.Scheduler.ReportTime == "" {
		c.Scheduler.ReportTime = "23:00"
	}
	if c.Scheduler.BackupReportTime == "" {
		c.Scheduler.BackupReportTime = "11:59"
	}
	if c.Scheduler.ExpiryWarningTime == "" {
		c.Scheduler.ExpiryWarningTime = "23:55"
	}
	if c.Scheduler.ExpiryWarningDays == 0 {
		c.Scheduler.ExpiryWarningDays = 3
	}
	if c.Scheduler.UsageWarnings.ThresholdPercent == 0 {
		c.Scheduler.UsageWarnings.ThresholdPercent = 85
	}
	if c.Scheduler.UsageWarnings.CheckHours == 0 {
		c.Scheduler.UsageWarnings.CheckHours = 6
	}
	if c.Scheduler.OnlineReportHours == 0 {
		c.Scheduler.OnlineReportHours = 3
	}
	if c.Scheduler.Birthday.Time == "" {
		c.Scheduler.Birthday.Time = "00:05"
	}
	if c.Scheduler.Birthday.GiftGB == 0 {
		c.Scheduler.Birthday.GiftGB = 1
	}
	if c.Scheduler.Birthday.GiftDays == 0 {
		c.Scheduler.Birthday.GiftDays = 3
	}
	if c.Scheduler.VacuumTime == "" {
		c.Scheduler.VacuumTime = "04:00"
	}
	if c.Telegram.SendDelay == 0 {
		c.Telegram.SendDelay = 300 * time.Millisecond
	}
}
