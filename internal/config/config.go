// Package config handles application configuration loading, validation,
// and hot reload for the client, backend, proxy, and API components.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration, unmarshalled from a YAML file, env
// vars (PGWIRE_ prefixed), or flags in that order of increasing
// precedence.
type Config struct {
	Client  ClientConfig  `mapstructure:"client"`
	Backend BackendConfig `mapstructure:"backend"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	API     APIConfig     `mapstructure:"api"`
	Log     LogConfig     `mapstructure:"log"`
}

// ClientConfig configures cmd/pgclient's connection to a server.
type ClientConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Database        string        `mapstructure:"database"`
	ApplicationName string        `mapstructure:"application_name"`
	Password        string        `mapstructure:"password"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
}

// BackendConfig configures cmd/pgserver's listener.
type BackendConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	MaxConnections int           `mapstructure:"max_connections"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	ServerVersion  string        `mapstructure:"server_version"`
}

// ProxyConfig configures cmd/pgproxy's listener and its single upstream.
type ProxyConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	UpstreamHost   string        `mapstructure:"upstream_host"`
	UpstreamPort   int           `mapstructure:"upstream_port"`
	UpstreamUser   string        `mapstructure:"upstream_user"`
	UpstreamPass   string        `mapstructure:"upstream_pass"`
	MaxConnections int           `mapstructure:"max_connections"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
}

// APIConfig configures the shared admin HTTP server (healthz/status/metrics).
type APIConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns sensible defaults for every component.
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			Host:            "127.0.0.1",
			Port:            5432,
			User:            "postgres",
			Database:        "postgres",
			ApplicationName: "pgclient",
			ReadTimeout:     5 * time.Second,
		},
		Backend: BackendConfig{
			ListenAddr:     ":5433",
			MaxConnections: 100,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			ServerVersion:  "14.0",
		},
		Proxy: ProxyConfig{
			ListenAddr:     ":6432",
			UpstreamPort:   5432,
			MaxConnections: 100,
			ConnectTimeout: 10 * time.Second,
			IdleTimeout:    5 * time.Minute,
		},
		API: APIConfig{
			Enabled:    true,
			ListenAddr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pgwire"
	}
	return filepath.Join(home, ".pgwire")
}

// Load loads configuration from viper defaults, the config file, and env
// vars, in that order of increasing precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultConfigDir())
		v.AddConfigPath("/etc/pgwire")
	}

	v.SetEnvPrefix("pgwire")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("client.host", d.Client.Host)
	v.SetDefault("client.port", d.Client.Port)
	v.SetDefault("client.user", d.Client.User)
	v.SetDefault("client.database", d.Client.Database)
	v.SetDefault("client.application_name", d.Client.ApplicationName)
	v.SetDefault("client.read_timeout", d.Client.ReadTimeout)

	v.SetDefault("backend.listen_addr", d.Backend.ListenAddr)
	v.SetDefault("backend.max_connections", d.Backend.MaxConnections)
	v.SetDefault("backend.read_timeout", d.Backend.ReadTimeout)
	v.SetDefault("backend.write_timeout", d.Backend.WriteTimeout)
	v.SetDefault("backend.server_version", d.Backend.ServerVersion)

	v.SetDefault("proxy.listen_addr", d.Proxy.ListenAddr)
	v.SetDefault("proxy.upstream_port", d.Proxy.UpstreamPort)
	v.SetDefault("proxy.max_connections", d.Proxy.MaxConnections)
	v.SetDefault("proxy.connect_timeout", d.Proxy.ConnectTimeout)
	v.SetDefault("proxy.idle_timeout", d.Proxy.IdleTimeout)

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.listen_addr", d.API.ListenAddr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.Set("client", c.Client)
	v.Set("backend", c.Backend)
	v.Set("proxy", c.Proxy)
	v.Set("api", c.API)
	v.Set("log", c.Log)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return v.WriteConfigAs(path)
}

// Validate checks the fields required to actually run one of the three
// components.
func (c *Config) Validate() error {
	if c.Proxy.UpstreamHost != "" && c.Proxy.ListenAddr == "" {
		return errors.New("proxy.listen_addr is required when proxy.upstream_host is set")
	}
	if c.Backend.ListenAddr == "" {
		return errors.New("backend.listen_addr is required")
	}
	return nil
}
