package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"
)

var listUnifiedAPI string

var connectionsCmd = &cobra.Command{
	Use:     "connections",
	Aliases: []string{"conn"},
	Short:   "Inspect and manage connections",
}

var connectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the consumer's connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w := newWidget(cfg)
		defer w.Close()

		api := listUnifiedAPI
		if api == "" {
			api = cfg.Session.UnifiedAPI
		}

		conns, err := w.Service().Load(cmd.Context(), api)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "State", "Enabled", "Consent"})
		for _, conn := range conns {
			t.AppendRow(table.Row{
				conn.Identity().String(),
				conn.Name,
				coloredState(conn.State),
				conn.Enabled,
				string(conn.ConsentState),
			})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

var connectionsGetCmd = &cobra.Command{
	Use:   "get <unifiedApi+serviceId>",
	Short: "Show one connection in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := connection.ParseIdentity(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w := newWidget(cfg)
		defer w.Close()

		conn, err := w.Service().Refresh(cmd.Context(), id)
		if err != nil {
			return err
		}
		printConnectionDetail(conn, cfg.Session.Actions)
		return nil
	},
}

func printConnectionDetail(conn *connection.Connection, allowed []connection.Action) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendRow(table.Row{"ID", conn.Identity().String()})
	t.AppendRow(table.Row{"Name", conn.Name})
	t.AppendRow(table.Row{"Auth type", string(conn.AuthType)})
	if conn.OAuthGrantType != "" {
		t.AppendRow(table.Row{"Grant type", string(conn.OAuthGrantType)})
	}
	t.AppendRow(table.Row{"State", coloredState(conn.State)})
	t.AppendRow(table.Row{"Enabled", conn.Enabled})
	if conn.ConsentState != "" {
		t.AppendRow(table.Row{"Consent", string(conn.ConsentState)})
	}
	actions := connection.AvailableActions(conn, allowed)
	if len(actions) > 0 {
		names := make([]string, len(actions))
		for i, a := range actions {
			names[i] = string(a)
		}
		t.AppendRow(table.Row{"Actions", strings.Join(names, ", ")})
	}
	if conn.HasOutstandingRequiredFields() {
		t.AppendRow(table.Row{"Settings", "required fields outstanding"})
	}
	if pending := connection.PendingReconsentScopes(conn); len(pending) > 0 {
		t.AppendRow(table.Row{"Pending scopes", strings.Join(pending, ", ")})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

var connectionsEnableCmd = &cobra.Command{
	Use:   "enable <unifiedApi+serviceId>",
	Short: "Enable a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], true)
	},
}

var connectionsDisableCmd = &cobra.Command{
	Use:   "disable <unifiedApi+serviceId>",
	Short: "Disable a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], false)
	},
}

func setEnabled(cmd *cobra.Command, rawID string, enabled bool) error {
	id, err := connection.ParseIdentity(rawID)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w := newWidget(cfg)
	defer w.Close()

	updated, err := w.Service().SetEnabled(cmd.Context(), id, enabled)
	if err != nil {
		return err
	}
	fmt.Printf("Connection %s is now %s (%s)\n", updated.Identity(), enabledWord(updated.Enabled), coloredState(updated.State))
	return nil
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

var connectionsDeleteCmd = &cobra.Command{
	Use:   "delete <unifiedApi+serviceId>",
	Short: "Delete a connection's settings and credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := connection.ParseIdentity(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w := newWidget(cfg)
		defer w.Close()

		api := cfg.Session.UnifiedAPI
		if api == "" {
			api = id.UnifiedAPI
		}
		if _, err := w.Service().Load(cmd.Context(), api); err != nil {
			return err
		}
		conn, err := findConnection(w.Service(), id)
		if err != nil {
			return err
		}
		if err := w.Service().Delete(cmd.Context(), conn); err != nil {
			return err
		}
		fmt.Printf("Connection %s deleted\n", id)
		return nil
	},
}

func init() {
	connectionsListCmd.Flags().StringVar(&listUnifiedAPI, "unified-api", "", "Filter the list to one unified API")

	connectionsCmd.AddCommand(connectionsListCmd)
	connectionsCmd.AddCommand(connectionsGetCmd)
	connectionsCmd.AddCommand(connectionsEnableCmd)
	connectionsCmd.AddCommand(connectionsDisableCmd)
	connectionsCmd.AddCommand(connectionsDeleteCmd)
	rootCmd.AddCommand(connectionsCmd)
}
