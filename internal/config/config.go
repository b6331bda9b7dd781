package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bstardust/photo-gps-resolver/internal/geocode"
	"github.com/bstardust/photo-gps-resolver/internal/storage"
	"github.com/bstardust/photo-gps-resolver/pkg/common"
	"github.com/bstardust/photo-gps-resolver/pkg/s3client"
)

// EnvPrefix prefixes every environment override, e.g. PHOTOGPS_DATABASE_PASSWORD
const EnvPrefix = "PHOTOGPS"

// Config represents the application configuration
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Tunnel   TunnelConfig   `mapstructure:"tunnel"`
	Geocoder GeocoderConfig `mapstructure:"geocoder"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Stats    StatsConfig    `mapstructure:"stats"`
	S3       S3Config       `mapstructure:"s3"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig addresses the database as seen from this host, or from the
// SSH server when the tunnel is in use
type DatabaseConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Name         string        `mapstructure:"name"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// TunnelConfig represents the SSH tunnel in front of the database
type TunnelConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	KeyFile        string        `mapstructure:"key_file"`
	KnownHosts     string        `mapstructure:"known_hosts"`
	DirectHostname string        `mapstructure:"direct_hostname"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type GeocoderConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	UserAgent       string        `mapstructure:"user_agent"`
	Email           string        `mapstructure:"email"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type StatsConfig struct {
	TopLimit    int   `mapstructure:"top_limit"`
	AdminChatID int64 `mapstructure:"admin_chat_id"`
}

// S3Config represents S3 connection configuration
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

type WorkersConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "photogps")
	v.SetDefault("database.user", "photogps")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_retries", 3)
	v.SetDefault("database.retry_backoff", 200*time.Millisecond)

	v.SetDefault("tunnel.enabled", false)
	v.SetDefault("tunnel.host", "")
	v.SetDefault("tunnel.port", 22)
	v.SetDefault("tunnel.user", "")
	v.SetDefault("tunnel.password", "")
	v.SetDefault("tunnel.key_file", "")
	v.SetDefault("tunnel.known_hosts", "")
	v.SetDefault("tunnel.direct_hostname", "")
	v.SetDefault("tunnel.timeout", 5*time.Second)

	v.SetDefault("geocoder.base_url", geocode.DefaultBaseURL)
	v.SetDefault("geocoder.user_agent", "photo-gps-resolver")
	v.SetDefault("geocoder.email", "")
	v.SetDefault("geocoder.rate_per_second", 1.0)
	v.SetDefault("geocoder.timeout", time.Duration(0))
	v.SetDefault("geocoder.breaker_failures", 5)
	v.SetDefault("geocoder.breaker_timeout", time.Minute)

	v.SetDefault("cache.ttl", 5*time.Minute)

	v.SetDefault("stats.top_limit", 30)
	v.SetDefault("stats.admin_chat_id", 0)

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("s3.prefix", "")

	v.SetDefault("workers.concurrency", 4)

	v.SetDefault("metrics.addr", "")
}

// New creates a new configuration with default values
func New() *Config {
	cfg, _ := load(viper.New(), "")
	return cfg
}

// Load reads defaults, then the optional file at path, then PHOTOGPS_*
// environment overrides
func Load(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every command needs
func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.Name == "" {
		return common.NewConfigError("database host and name are required")
	}
	if c.Database.MaxRetries < 1 {
		return common.NewConfigError("database.max_retries must be at least 1")
	}
	if c.Tunnel.Enabled && (c.Tunnel.Host == "" || c.Tunnel.User == "") {
		return common.NewConfigError("tunnel host and user are required when the tunnel is enabled")
	}
	if c.Tunnel.Enabled && c.Tunnel.Password == "" && c.Tunnel.KeyFile == "" {
		return common.NewConfigError("tunnel needs a password or a key file")
	}
	if c.Workers.Concurrency < 1 {
		return common.NewConfigError("workers.concurrency must be at least 1")
	}
	return nil
}

// DSN returns the PostgreSQL connection URL
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

// StorageConfig builds the connector settings. The tunnel is left out when it
// is disabled or this host is the direct one.
func (c *Config) StorageConfig() storage.Config {
	retry := storage.DefaultRetryConfig()
	retry.MaxAttempts = c.Database.MaxRetries
	retry.InitialBackoff = c.Database.RetryBackoff

	sc := storage.Config{
		DSN:   c.Database.DSN(),
		Retry: retry,
	}

	if storage.UseTunnel(c.Tunnel.Enabled, c.Tunnel.DirectHostname) {
		sc.Tunnel = &storage.TunnelConfig{
			Host:       c.Tunnel.Host,
			Port:       c.Tunnel.Port,
			User:       c.Tunnel.User,
			Password:   c.Tunnel.Password,
			KeyFile:    c.Tunnel.KeyFile,
			KnownHosts: c.Tunnel.KnownHosts,
			Timeout:    c.Tunnel.Timeout,
		}
	}

	return sc
}

// GeocodeConfig converts to the geocoder settings
func (c *Config) GeocodeConfig() geocode.Config {
	return geocode.Config{
		BaseURL:         c.Geocoder.BaseURL,
		UserAgent:       c.Geocoder.UserAgent,
		Email:           c.Geocoder.Email,
		RatePerSecond:   c.Geocoder.RatePerSecond,
		Timeout:         c.Geocoder.Timeout,
		BreakerFailures: c.Geocoder.BreakerFailures,
		BreakerTimeout:  c.Geocoder.BreakerTimeout,
	}
}

// S3Enabled reports whether an S3 endpoint is configured
func (c *Config) S3Enabled() bool {
	return c.S3.Endpoint != ""
}

// S3ClientConfig converts to the S3 client settings
func (c *Config) S3ClientConfig() s3client.Config {
	return s3client.Config{
		Endpoint:  c.S3.Endpoint,
		Region:    c.S3.Region,
		Bucket:    c.S3.Bucket,
		AccessKey: c.S3.AccessKey,
		SecretKey: c.S3.SecretKey,
		UseSSL:    c.S3.UseSSL,
		Prefix:    c.S3.Prefix,
	}
}
