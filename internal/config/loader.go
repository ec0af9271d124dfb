package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/apideck-libraries/vault-core-sub000/pkg/logging"
)

const (
	userConfigDir  = ".config/vault-core"
	configFileName = "config.yaml"

	// TokenEnvVar overrides the token from the config file when set.
	TokenEnvVar = "VAULT_CORE_TOKEN"
)

// GetDefaultConfigPathOrPanic returns the per-user configuration directory.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}
	return filepath.Join(homeDir, userConfigDir)
}

// SessionStorePath returns the directory used for session-scoped nonce
// persistence under the given config path.
func SessionStorePath(configPath string) string {
	return filepath.Join(configPath, "session")
}

// LoadConfig loads configuration from the specified directory, overlaying
// config.yaml on the defaults. A missing file is not an error.
func LoadConfig(configPath string) (VaultConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return applyEnv(cfg), nil
		}
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return VaultConfig{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return VaultConfig{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return applyEnv(cfg), nil
}

// applyEnv overlays environment-provided secrets.
func applyEnv(cfg VaultConfig) VaultConfig {
	if token := os.Getenv(TokenEnvVar); token != "" {
		cfg.API.Token = token
	}
	return cfg
}

// Validate checks that the configuration can drive a widget session.
func (c VaultConfig) Validate() error {
	if c.API.Endpoint == "" {
		return errors.New("api.endpoint is required")
	}
	if c.API.TrustedOrigin == "" {
		return errors.New("api.trustedOrigin is required")
	}
	if c.API.Token == "" {
		return fmt.Errorf("api.token is required (set it in config.yaml or via %s)", TokenEnvVar)
	}
	return nil
}
