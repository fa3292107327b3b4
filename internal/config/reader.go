package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "TELECLOUD"

func DefaultConfigDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("os.UserHomeDir: %w", err)
	}
	return filepath.Join(homeDir, ".config", "telecloud"), nil
}

// ReadConfig reads configFile, or default.toml under the default config
// directory when configFile is empty. A missing file leaves the defaults in
// place. Environment variables prefixed with TELECLOUD_ override the file.
func ReadConfig(configFile string) (Config, error) {
	conf := Default()

	configDir, err := DefaultConfigDirectory()
	if err != nil {
		return conf, err
	}
	if configFile == "" {
		configFile = filepath.Join(configDir, "default.toml")
	} else {
		configDir = filepath.Dir(configFile)
	}
	conf.ConfigDirectory = configDir
	conf.LogDirectory = filepath.Join(configDir, "logs")

	if _, err := toml.DecodeFile(configFile, &conf); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return conf, fmt.Errorf("toml.DecodeFile: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &conf); err != nil {
		return conf, fmt.Errorf("envconfig.Process: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return conf, fmt.Errorf("Validate: %w", err)
	}

	if err := os.MkdirAll(conf.ConfigDirectory, 0755); err != nil {
		return conf, fmt.Errorf("os.MkdirAll: %w", err)
	}
	return conf, nil
}
