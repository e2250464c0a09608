package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/displaylog/internal/ingest"
	"github.com/tinytelemetry/displaylog/internal/model"
	"github.com/tinytelemetry/displaylog/internal/socketrpc"
)

const (
	defaultBindHost       = "0.0.0.0"
	defaultHTTPPort       = 8080
	defaultMaxEntries     = model.DefaultMaxEntries
	defaultLogLevel       = "info"
	defaultBackupInterval = 6 * time.Hour
	defaultBackupKeepLast = 24
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	LogPath          string   `mapstructure:"log-path" yaml:"log-path" validate:"required"`
	MaxEntries       int      `mapstructure:"max-entries" yaml:"max-entries" validate:"min=1"`
	ValidationPolicy string   `mapstructure:"validation-policy" yaml:"validation-policy" validate:"oneof=partial strict"`
	SerializeWrites  bool     `mapstructure:"serialize-writes" yaml:"serialize-writes"`
	HTTPPort         int      `mapstructure:"http-port" yaml:"http-port" validate:"min=1,max=65535"`
	HTTPAddr         string   `mapstructure:"http-addr" yaml:"http-addr"`
	TrustedProxies   []string `mapstructure:"trusted-proxies" yaml:"trusted-proxies" validate:"dive,ip|cidr"`
	StaticDir        string   `mapstructure:"static-dir" yaml:"static-dir"`
	SocketEnabled    bool     `mapstructure:"socket-enabled" yaml:"socket-enabled"`
	SocketPath       string   `mapstructure:"socket-path" yaml:"socket-path" validate:"required_if=SocketEnabled true"`
	LogLevel         string   `mapstructure:"log-level" yaml:"log-level" validate:"oneof=trace debug info warn error"`

	BackupEnabled        bool          `mapstructure:"backup-enabled" yaml:"backup-enabled"`
	BackupInterval       time.Duration `mapstructure:"backup-interval" yaml:"backup-interval" validate:"min=0"`
	BackupLocalDir       string        `mapstructure:"backup-local-dir" yaml:"backup-local-dir" validate:"required_if=BackupEnabled true"`
	BackupKeepLast       int           `mapstructure:"backup-keep-last" yaml:"backup-keep-last" validate:"min=0"`
	BackupBucketURL      string        `mapstructure:"backup-bucket-url" yaml:"backup-bucket-url" validate:"omitempty,startswith=s3://"`
	BackupS3Endpoint     string        `mapstructure:"backup-s3-endpoint" yaml:"backup-s3-endpoint"`
	BackupS3Region       string        `mapstructure:"backup-s3-region" yaml:"backup-s3-region"`
	BackupS3AccessKey    string        `mapstructure:"backup-s3-access-key" yaml:"backup-s3-access-key"`
	BackupS3SecretKey    string        `mapstructure:"backup-s3-secret-key" yaml:"backup-s3-secret-key"`
	BackupS3SessionToken string        `mapstructure:"backup-s3-session-token" yaml:"backup-s3-session-token"`
	BackupS3UseSSL       bool          `mapstructure:"backup-s3-use-ssl" yaml:"backup-s3-use-ssl"`

	ConfigPath string `mapstructure:"-" yaml:"-"` // not from config file
}

// policy returns the parsed validation policy; loadConfig has already validated it.
func (c appConfig) policy() ingest.Policy {
	p, err := ingest.ParsePolicy(c.ValidationPolicy)
	if err != nil {
		return ingest.PolicyPartial
	}
	return p
}

// redacted returns a copy safe to print.
func (c appConfig) redacted() appConfig {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.BackupS3AccessKey = mask(c.BackupS3AccessKey)
	c.BackupS3SecretKey = mask(c.BackupS3SecretKey)
	c.BackupS3SessionToken = mask(c.BackupS3SessionToken)
	return c
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("DISPLAYLOG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("log-path", filepath.Join(home, ".local", "share", "displaylog", "log.xml"))
	v.SetDefault("max-entries", defaultMaxEntries)
	v.SetDefault("validation-policy", string(ingest.PolicyPartial))
	v.SetDefault("serialize-writes", false)
	v.SetDefault("http-port", defaultHTTPPort)
	v.SetDefault("http-addr", "")
	v.SetDefault("trusted-proxies", []string{})
	v.SetDefault("static-dir", "")
	v.SetDefault("socket-enabled", true)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-local-dir", filepath.Join(home, ".local", "share", "displaylog", "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("backup-bucket-url", "")
	v.SetDefault("backup-s3-endpoint", "")
	v.SetDefault("backup-s3-region", "")
	v.SetDefault("backup-s3-access-key", "")
	v.SetDefault("backup-s3-secret-key", "")
	v.SetDefault("backup-s3-session-token", "")
	v.SetDefault("backup-s3-use-ssl", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "displaylog", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	cfg.ValidationPolicy = strings.ToLower(strings.TrimSpace(cfg.ValidationPolicy))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	cfg.LogPath = expandHome(home, cfg.LogPath)
	cfg.StaticDir = expandHome(home, cfg.StaticDir)
	cfg.SocketPath = expandHome(home, cfg.SocketPath)
	cfg.BackupLocalDir = expandHome(home, cfg.BackupLocalDir)

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.HTTPPort))
	}

	return cfg, nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
