package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
)

type DatabaseDriver string

const (
	DatabaseDriverSQLite DatabaseDriver = "sqlite"
	DatabaseDriverMySQL  DatabaseDriver = "mysql"
)

// BlobMode decides how file bytes are read back from the Bot API server.
type BlobMode string

const (
	// BlobModeLocal reads files from a volume shared with a local Bot API server.
	BlobModeLocal BlobMode = "local"
	// BlobModeNetworked downloads files over HTTPS from the Bot API host.
	BlobModeNetworked BlobMode = "networked"
)

const (
	MiB = int64(1024 * 1024)
	GiB = 1024 * MiB
)

type Config struct {
	Environment     Environment `toml:"environment" envconfig:"environment"`
	ConfigDirectory string      `toml:"config_directory" envconfig:"config_directory"`
	LogDirectory    string      `toml:"log_directory" envconfig:"log_directory"`

	Database DatabaseConfig `toml:"database" envconfig:"database"`
	Server   ServerConfig   `toml:"server" envconfig:"server"`
	Telegram TelegramConfig `toml:"telegram" envconfig:"telegram"`
	Preview  PreviewConfig  `toml:"preview" envconfig:"preview"`
	Monitor  MonitorConfig  `toml:"monitor" envconfig:"monitor"`
	Importer ImporterConfig `toml:"importer" envconfig:"importer"`
}

type DatabaseConfig struct {
	Driver DatabaseDriver `toml:"driver" envconfig:"driver"`
	// DSN defaults to a SQLite file under the config directory.
	DSN string `toml:"dsn" envconfig:"dsn"`
}

type ServerConfig struct {
	Address string `toml:"address" envconfig:"address"`
}

type TelegramConfig struct {
	Mode       BlobMode `toml:"mode" envconfig:"mode"`
	APIBaseURL string   `toml:"api_base_url" envconfig:"api_base_url"`
	// RemoteHost serves /file/bot<token>/<path> in networked mode.
	RemoteHost string `toml:"remote_host" envconfig:"remote_host"`
	// RemoteRoot is the working directory of the Bot API server, which is
	// mounted at LocalBaseDirectory on this host in local mode.
	RemoteRoot         string        `toml:"remote_root" envconfig:"remote_root"`
	LocalBaseDirectory string        `toml:"local_base_directory" envconfig:"local_base_directory"`
	RequestsPerSecond  float64       `toml:"requests_per_second" envconfig:"requests_per_second"`
	Burst              int           `toml:"burst" envconfig:"burst"`
	RetryCount         int           `toml:"retry_count" envconfig:"retry_count"`
	Timeout            time.Duration `toml:"timeout" envconfig:"timeout"`
	MaxUploadBytes     int64         `toml:"max_upload_bytes" envconfig:"max_upload_bytes"`
}

type PreviewConfig struct {
	MaxBytes   int64    `toml:"max_bytes" envconfig:"max_bytes"`
	Extensions []string `toml:"extensions" envconfig:"extensions"`
}

type MonitorConfig struct {
	Enabled          bool          `toml:"enabled" envconfig:"enabled"`
	CacheDirectory   string        `toml:"cache_directory" envconfig:"cache_directory"`
	CeilingBytes     int64         `toml:"ceiling_bytes" envconfig:"ceiling_bytes"`
	Interval         time.Duration `toml:"interval" envconfig:"interval"`
	ScratchDirectory string        `toml:"scratch_directory" envconfig:"scratch_directory"`
	ScratchInterval  time.Duration `toml:"scratch_interval" envconfig:"scratch_interval"`
	ControlSocket    string        `toml:"control_socket" envconfig:"control_socket"`
	ContainerName    string        `toml:"container_name" envconfig:"container_name"`
}

type ImporterConfig struct {
	Concurrency int `toml:"concurrency" envconfig:"concurrency"`
}

func Default() Config {
	return Config{
		Environment: EnvironmentProduction,
		Database: DatabaseConfig{
			Driver: DatabaseDriverSQLite,
		},
		Server: ServerConfig{
			Address: ":8080",
		},
		Telegram: TelegramConfig{
			Mode:               BlobModeLocal,
			APIBaseURL:         "https://api.telegram.org",
			RemoteHost:         "api.telegram.org",
			RemoteRoot:         "/var/lib/telegram-bot-api",
			LocalBaseDirectory: "/var/lib/telegram-bot-api",
			RequestsPerSecond:  20,
			Burst:              20,
			RetryCount:         3,
			Timeout:            10 * time.Minute,
			MaxUploadBytes:     2000 * MiB,
		},
		Preview: PreviewConfig{
			MaxBytes: 30 * MiB,
			Extensions: []string{
				"jpg", "jpeg", "png", "gif", "webp", "svg",
				"mp4", "webm", "ogg",
				"txt", "md", "js", "css", "html", "json", "log",
				"pdf",
			},
		},
		Monitor: MonitorConfig{
			Enabled:          true,
			CacheDirectory:   "/var/lib/telegram-bot-api",
			CeilingBytes:     10 * GiB,
			Interval:         6 * time.Hour,
			ScratchDirectory: filepath.Join(os.TempDir(), "telecloud"),
			ScratchInterval:  10 * time.Minute,
			ControlSocket:    "/var/run/docker.sock",
			ContainerName:    "telegram-bot-api",
		},
		Importer: ImporterConfig{
			Concurrency: 4,
		},
	}
}

func (conf Config) Validate() error {
	var errs []error
	switch conf.Environment {
	case EnvironmentDevelopment, EnvironmentProduction:
	default:
		errs = append(errs, fmt.Errorf("unknown environment: %q", conf.Environment))
	}
	switch conf.Database.Driver {
	case DatabaseDriverSQLite:
	case DatabaseDriverMySQL:
		if conf.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for mysql"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver: %q", conf.Database.Driver))
	}
	switch conf.Telegram.Mode {
	case BlobModeLocal:
		if conf.Telegram.LocalBaseDirectory == "" {
			errs = append(errs, errors.New("telegram.local_base_directory is required in local mode"))
		}
	case BlobModeNetworked:
		if conf.Telegram.RemoteHost == "" {
			errs = append(errs, errors.New("telegram.remote_host is required in networked mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown telegram mode: %q", conf.Telegram.Mode))
	}
	if conf.Telegram.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("telegram.requests_per_second must be positive"))
	}
	if conf.Monitor.Enabled {
		if conf.Monitor.CeilingBytes <= 0 {
			errs = append(errs, errors.New("monitor.ceiling_bytes must be positive"))
		}
		if conf.Monitor.Interval <= 0 {
			errs = append(errs, errors.New("monitor.interval must be positive"))
		}
	}
	if conf.Monitor.ScratchInterval <= 0 {
		errs = append(errs, errors.New("monitor.scratch_interval must be positive"))
	}
	if conf.Importer.Concurrency <= 0 {
		errs = append(errs, errors.New("importer.concurrency must be positive"))
	}
	return errors.Join(errs...)
}
