package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"
)

var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "Manage data-scope consent for a connection",
}

var consentGrantCmd = &cobra.Command{
	Use:   "grant <unifiedApi+serviceId> [scope...]",
	Short: "Grant consent for scope paths",
	Long: `grant records consent for the given scope paths, e.g.

  vault-core consent grant crm+salesforce crm.contacts.email:rw crm.companies.name:r

Each scope is resource.field optionally suffixed with :r, :w or :rw
(default :r). With no scopes, all currently requested application data
scopes are granted read access.`,
	Args: cobra.MinimumNArgs(1),
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

		scopes := args[1:]
		if len(scopes) == 0 {
			conn, err := w.Service().Refresh(cmd.Context(), id)
			if err != nil {
				return err
			}
			if conn.ApplicationDataScopes != nil {
				scopes = conn.ApplicationDataScopes.Resources
			}
			if len(scopes) == 0 {
				return fmt.Errorf("connection %s has no requested data scopes to grant", id)
			}
		}

		resources, err := parseScopeArgs(scopes)
		if err != nil {
			return err
		}

		updated, err := w.Service().GrantConsent(cmd.Context(), id, resources)
		if err != nil {
			return err
		}
		fmt.Printf("Consent for %s is now %s\n", id, string(updated.ConsentState))
		return nil
	},
}

var consentDenyCmd = &cobra.Command{
	Use:   "deny <unifiedApi+serviceId>",
	Short: "Deny the pending consent request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return consentWithdraw(cmd, args[0], false)
	},
}

var consentRevokeCmd = &cobra.Command{
	Use:   "revoke <unifiedApi+serviceId>",
	Short: "Revoke a previously granted consent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return consentWithdraw(cmd, args[0], true)
	},
}

func consentWithdraw(cmd *cobra.Command, rawID string, revoke bool) error {
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

	var updated *connection.Connection
	if revoke {
		updated, err = w.Service().RevokeConsent(cmd.Context(), id)
	} else {
		updated, err = w.Service().DenyConsent(cmd.Context(), id)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Consent for %s is now %s\n", id, string(updated.ConsentState))
	return nil
}

var consentStatusCmd = &cobra.Command{
	Use:   "status <unifiedApi+serviceId>",
	Short: "Show the consent state and any pending reconsent scopes",
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

		state := string(conn.ConsentState)
		if state == "" {
			state = "implicit"
		}
		fmt.Printf("Consent for %s: %s\n", id, state)

		if pending := connection.PendingReconsentScopes(conn); len(pending) > 0 {
			fmt.Println(text.FgYellow.Sprint("The application now requests scopes not covered by the latest grant:"))
			for _, scope := range pending {
				fmt.Printf("  - %s\n", scope)
			}
			fmt.Println("Run `vault-core consent grant` to re-consent.")
		}
		return nil
	},
}

var consentHistoryCmd = &cobra.Command{
	Use:   "history <unifiedApi+serviceId>",
	Short: "Show the consent record history",
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

		records, err := w.Service().ConsentHistory(cmd.Context(), id)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"When", "Granted", "Scopes"})
		for _, rec := range records {
			t.AppendRow(table.Row{
				formatUnix(rec.CreatedAt),
				rec.Granted,
				formatResources(rec.Resources),
			})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

// parseScopeArgs converts CLI scope arguments ("crm.contacts.email:rw") into
// the nested consent resource map.
func parseScopeArgs(scopes []string) (connection.ConsentResources, error) {
	resources := make(connection.ConsentResources)
	for _, raw := range scopes {
		path := raw
		access := connection.ScopeAccess{Read: true}
		if idx := strings.LastIndex(raw, ":"); idx >= 0 {
			path = raw[:idx]
			access = connection.ScopeAccess{}
			for _, r := range raw[idx+1:] {
				switch r {
				case 'r':
					access.Read = true
				case 'w':
					access.Write = true
				default:
					return nil, fmt.Errorf("invalid access spec in scope %q, expected :r, :w or :rw", raw)
				}
			}
		}

		dot := strings.LastIndex(path, ".")
		if dot <= 0 {
			return nil, fmt.Errorf("invalid scope %q, expected resource.field", raw)
		}
		resource, field := path[:dot], path[dot+1:]
		if resources[resource] == nil {
			resources[resource] = make(map[string]connection.ScopeAccess)
		}
		resources[resource][field] = access
	}
	return resources, nil
}

func formatResources(resources connection.ConsentResources) string {
	var parts []string
	for resource, fields := range resources {
		for field, access := range fields {
			suffix := ""
			if access.Read {
				suffix += "r"
			}
			if access.Write {
				suffix += "w"
			}
			parts = append(parts, resource+"."+field+":"+suffix)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format(time.RFC3339)
}

func init() {
	consentCmd.AddCommand(consentGrantCmd)
	consentCmd.AddCommand(consentDenyCmd)
	consentCmd.AddCommand(consentRevokeCmd)
	consentCmd.AddCommand(consentStatusCmd)
	consentCmd.AddCommand(consentHistoryCmd)
	rootCmd.AddCommand(consentCmd)
}
