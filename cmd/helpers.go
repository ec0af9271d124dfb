package cmd

import (
	"fmt"

	"github.com/apideck-libraries/vault-core-sub000/internal/config"
	"github.com/apideck-libraries/vault-core-sub000/internal/connections"
	"github.com/apideck-libraries/vault-core-sub000/internal/nonce"
	"github.com/apideck-libraries/vault-core-sub000/internal/notify"
	"github.com/apideck-libraries/vault-core-sub000/internal/popup"
	"github.com/apideck-libraries/vault-core-sub000/internal/vault"
	"github.com/apideck-libraries/vault-core-sub000/internal/widget"
	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"

	"github.com/jedib0t/go-pretty/v6/text"
)

// loadConfig loads and validates the CLI configuration.
func loadConfig() (config.VaultConfig, error) {
	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		return config.VaultConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.VaultConfig{}, err
	}
	return cfg, nil
}

// newWidget builds a widget instance for one CLI invocation. Notifications
// are printed to the terminal; nonces persist under the session directory so
// an interrupted authorize can still be confirmed by a re-run.
func newWidget(cfg config.VaultConfig) *widget.Widget {
	client := vault.NewClient(vault.Config{
		BaseURL:    cfg.API.Endpoint,
		Token:      cfg.API.Token,
		AppID:      cfg.API.AppID,
		ConsumerID: cfg.API.ConsumerID,
	})

	return widget.New(widget.Config{
		TrustedOrigin: cfg.API.TrustedOrigin,
		Client:        client,
		Nonces:        nonce.NewFileStore(config.SessionStorePath(configPath())),
		Opener:        &popup.ExecOpener{Command: cfg.Popup.BrowserCommand},
		PollInterval:  cfg.Popup.PollInterval(),
		Mode:          cfg.Session.Mode,
		Notifier:      notify.Func(printNotification),
	})
}

// printNotification renders a core notification on the terminal.
func printNotification(n notify.Notification) {
	prefix := text.FgYellow.Sprint("note")
	switch n.Level {
	case notify.LevelError:
		prefix = text.FgRed.Sprint("error")
	case notify.LevelSuccess:
		prefix = text.FgGreen.Sprint("ok")
	}
	if n.Detail != "" {
		fmt.Printf("%s: %s (%s)\n", prefix, n.Message, n.Detail)
		return
	}
	fmt.Printf("%s: %s\n", prefix, n.Message)
}

// coloredState renders a connection state with the color scheme used across
// list and detail output.
func coloredState(state connection.AuthState) string {
	switch state {
	case connection.StateCallable:
		return text.FgGreen.Sprint(string(state))
	case connection.StateInvalid:
		return text.FgRed.Sprint(string(state))
	case connection.StateAuthorized, connection.StateAdded:
		return text.FgYellow.Sprint(string(state))
	default:
		return string(state)
	}
}

// findConnection returns the cached list entry for the identity. Callers
// load the list view first.
func findConnection(svc *connections.Service, id connection.Identity) (*connection.Connection, error) {
	if conn := svc.Get(id); conn != nil {
		return conn, nil
	}
	return nil, fmt.Errorf("connection %s not found", id)
}
