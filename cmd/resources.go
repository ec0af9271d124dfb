package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Inspect downstream resource configuration for a connection",
}

var resourcesSchemaCmd = &cobra.Command{
	Use:   "schema <unifiedApi+serviceId> <resource>",
	Short: "Print the downstream schema for a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResourceJSON(cmd.Context(), args[0], func(ctx context.Context, id connection.Identity, svc resourceReader) (json.RawMessage, error) {
			return svc.ResourceSchema(ctx, id, args[1])
		})
	},
}

var resourcesExampleCmd = &cobra.Command{
	Use:   "example <unifiedApi+serviceId> <resource>",
	Short: "Print an example payload for a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResourceJSON(cmd.Context(), args[0], func(ctx context.Context, id connection.Identity, svc resourceReader) (json.RawMessage, error) {
			return svc.ResourceExample(ctx, id, args[1])
		})
	},
}

var resourcesConfigCmd = &cobra.Command{
	Use:   "config <unifiedApi+serviceId> <resource>",
	Short: "Print the per-resource configuration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResourceJSON(cmd.Context(), args[0], func(ctx context.Context, id connection.Identity, svc resourceReader) (json.RawMessage, error) {
			return svc.ResourceConfig(ctx, id, args[1])
		})
	},
}

var resourcesMappingsCmd = &cobra.Command{
	Use:   "mappings <unifiedApi+serviceId>",
	Short: "Print the custom field mappings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResourceJSON(cmd.Context(), args[0], func(ctx context.Context, id connection.Identity, svc resourceReader) (json.RawMessage, error) {
			return svc.CustomMappings(ctx, id)
		})
	},
}

// resourceReader is the slice of the connections service these commands use.
type resourceReader interface {
	ResourceSchema(ctx context.Context, id connection.Identity, resource string) (json.RawMessage, error)
	ResourceExample(ctx context.Context, id connection.Identity, resource string) (json.RawMessage, error)
	ResourceConfig(ctx context.Context, id connection.Identity, resource string) (json.RawMessage, error)
	CustomMappings(ctx context.Context, id connection.Identity) (json.RawMessage, error)
}

func printResourceJSON(ctx context.Context, rawID string, fetch func(context.Context, connection.Identity, resourceReader) (json.RawMessage, error)) error {
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

	raw, err := fetch(ctx, id, w.Service())
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(out.String())
	return nil
}

func init() {
	resourcesCmd.AddCommand(resourcesSchemaCmd)
	resourcesCmd.AddCommand(resourcesExampleCmd)
	resourcesCmd.AddCommand(resourcesConfigCmd)
	resourcesCmd.AddCommand(resourcesMappingsCmd)
	rootCmd.AddCommand(resourcesCmd)
}
