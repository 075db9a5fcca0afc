package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Sizing   SizingConfig   `mapstructure:"sizing"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// VaultConfig 描述凭证保险库的存储位置与派生参数。
type VaultConfig struct {
	Dir          string `mapstructure:"dir"`
	SaltFile     string `mapstructure:"salt_file"`
	KeyFile      string `mapstructure:"key_file"`
	AccountsFile string `mapstructure:"accounts_file"`
	Iterations   int    `mapstructure:"iterations"`
}

// ExchangeConfig 描述交易所连接行为。
type ExchangeConfig struct {
	Name           string      `mapstructure:"name"`
	DefaultSandbox bool        `mapstructure:"default_sandbox"`
	Retry          RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// SizingConfig 控制下单数量换算行为。
type SizingConfig struct {
	QuoteSuffix string `mapstructure:"quote_suffix"`
	TimeInForce string `mapstructure:"time_in_force"`
}

// DatabaseConfig 管理批次流水数据库。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Vault.Dir == "" {
		err = multierr.Append(err, errors.New("vault.dir 不能为空"))
	}
	if c.Vault.SaltFile == "" || c.Vault.KeyFile == "" || c.Vault.AccountsFile == "" {
		err = multierr.Append(err, errors.New("vault 文件名不能为空"))
	}
	if c.Vault.Iterations < 100000 {
		err = multierr.Append(err, errors.New("vault.iterations 不能低于100000"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Sizing.QuoteSuffix == "" {
		err = multierr.Append(err, errors.New("sizing.quote_suffix 不能为空"))
	}
	switch strings.ToUpper(c.Sizing.TimeInForce) {
	case "GTC", "IOC", "FOK":
	default:
		err = multierr.Append(err, errors.New("sizing.time_in_force 必须为 GTC/IOC/FOK 之一"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
