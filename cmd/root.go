package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/apideck-libraries/vault-core-sub000/internal/config"
	"github.com/apideck-libraries/vault-core-sub000/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
)

// Persistent flags shared by all subcommands.
var (
	flagConfigPath string
	flagDebug      bool
)

// rootCmd is the base command of the vault-core CLI.
var rootCmd = &cobra.Command{
	Use:   "vault-core",
	Short: "Manage integration connections through the vault backend",
	Long: `vault-core drives the vault connection core from the command line:
list and inspect connections, run the OAuth authorization handshake in a
browser, and manage data-scope consent.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelWarn
		if flagDebug {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, os.Stderr)
	},
}

// SetVersion sets the version for the root command. Called from main with
// the build-injected version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "vault-core version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Path to the configuration directory (default ~/.config/vault-core)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
}

// configPath resolves the configuration directory from the flag or default.
func configPath() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}
	return config.GetDefaultConfigPathOrPanic()
}
