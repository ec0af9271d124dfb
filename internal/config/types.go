package config

import (
	"time"

	"github.com/apideck-libraries/vault-core-sub000/internal/connections"
	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"
)

// VaultConfig is the top-level configuration for the vault connection core.
type VaultConfig struct {
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Popup   PopupConfig   `yaml:"popup,omitempty"`
}

// APIConfig locates and authenticates against the vault backend.
type APIConfig struct {
	// Endpoint is the base URL of the vault API.
	Endpoint string `yaml:"endpoint"`

	// TrustedOrigin is the authorizer origin completion messages must
	// come from. Exactly one origin is trusted.
	TrustedOrigin string `yaml:"trustedOrigin"`

	// Token is the session bearer token. Usually supplied via the
	// VAULT_CORE_TOKEN environment variable rather than the file.
	Token string `yaml:"token,omitempty"`

	// AppID and ConsumerID identify the embedding application and end-user.
	AppID      string `yaml:"appId"`
	ConsumerID string `yaml:"consumerId"`
}

// SessionConfig shapes widget behavior for a session.
type SessionConfig struct {
	// Mode selects single- or multi-connection behavior.
	Mode connections.SessionMode `yaml:"mode,omitempty"`

	// UnifiedAPI optionally filters the list view to one unified API.
	UnifiedAPI string `yaml:"unifiedApi,omitempty"`

	// Actions is the tenant allow-list of connection actions. Empty means
	// all actions.
	Actions []connection.Action `yaml:"actions,omitempty"`
}

// PopupConfig shapes the popup launcher.
type PopupConfig struct {
	// PollIntervalMS is the popup closed-state polling interval in
	// milliseconds. Zero selects the default (500).
	PollIntervalMS int `yaml:"pollIntervalMs,omitempty"`

	// BrowserCommand is the argv template for opening the authorizer,
	// e.g. ["chromium", "--app=%s"]. Empty selects the platform launcher.
	BrowserCommand []string `yaml:"browserCommand,omitempty"`
}

// PollInterval returns the configured interval as a duration.
func (p PopupConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMS) * time.Millisecond
}

// GetDefaultConfig returns the defaults applied before the file overlay.
func GetDefaultConfig() VaultConfig {
	return VaultConfig{
		Session: SessionConfig{Mode: connections.ModeMulti},
	}
}
