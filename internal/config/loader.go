package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Checker  CheckerConfig  `mapstructure:"checker"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Features FeaturesConfig `mapstructure:"features"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// CheckerConfig tunes the ban-check orchestrator.
type CheckerConfig struct {
	StatusEndpoint        string        `mapstructure:"status_endpoint"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	TaskTimeout           time.Duration `mapstructure:"task_timeout"`
	ProxyFailureThreshold int           `mapstructure:"proxy_failure_threshold"`
	ProxyCooldown         time.Duration `mapstructure:"proxy_cooldown"`
	RateLimitCooldown     time.Duration `mapstructure:"rate_limit_cooldown"`
	RequireProxies        bool          `mapstructure:"require_proxies"`
	MaxIdentifiers        int           `mapstructure:"max_identifiers"`
	PollLimitRequests     int           `mapstructure:"poll_limit_requests"`
	PollLimitWindow       time.Duration `mapstructure:"poll_limit_window"`
}

// Normalized fills zero-valued checker settings with safe defaults.
func (c CheckerConfig) Normalized() CheckerConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 30 * time.Minute
	}
	if c.ProxyFailureThreshold <= 0 {
		c.ProxyFailureThreshold = 3
	}
	if c.ProxyCooldown <= 0 {
		c.ProxyCooldown = 30 * time.Second
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = 5 * time.Second
	}
	if c.MaxIdentifiers <= 0 {
		c.MaxIdentifiers = 10000
	}
	if c.PollLimitRequests <= 0 {
		c.PollLimitRequests = 30
	}
	if c.PollLimitWindow <= 0 {
		c.PollLimitWindow = 10 * time.Second
	}
	return c
}

type AuthConfig struct {
	AdminAPIKey    string            `mapstructure:"admin_api_key"`
	APIKeys        map[string]string `mapstructure:"api_keys"` // key -> owner id
	AllowedOrigins []string          `mapstructure:"allowed_origins"`
}

type FeaturesConfig struct {
	RequestIDHeader      string `mapstructure:"request_id_header"`
	EnableRequestLogging bool   `mapstructure:"enable_request_logging"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetEnvPrefix("BANWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Checker = cfg.Checker.Normalized()
	return &cfg, nil
}
