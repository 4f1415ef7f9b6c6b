package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"agentauth/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/agentauth"
	configFileName = "config.yaml"
)

// GetDefaultConfigPathOrPanic returns the user's agentauth config directory.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from the specified directory. The directory
// should contain config.yaml; a missing file yields the built-in defaults.
// Values present in the file override defaults field by field.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			applyStorageDefaults(&config, configPath)
			return config, nil
		}
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		// config malformed
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	applyStorageDefaults(&config, configPath)

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// applyStorageDefaults fills in storage directories relative to the config
// directory when the user did not set them.
func applyStorageDefaults(config *Config, configPath string) {
	if config.Storage.CredentialsDir == "" {
		config.Storage.CredentialsDir = filepath.Join(configPath, "credentials")
	}
	if config.Storage.SessionsDir == "" {
		config.Storage.SessionsDir = filepath.Join(configPath, "sessions")
	}
}
