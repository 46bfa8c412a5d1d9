package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSuggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <batch-id>",
		Short: "Show suggested column-to-field mappings for a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := client.getJSON("/api/imports/"+args[0]+"/suggestions", &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newMapCmd() *cobra.Command {
	var (
		mappingFile  string
		templateID   string
		saveTemplate string
	)
	cmd := &cobra.Command{
		Use:   "map <batch-id>",
		Short: "Apply a column mapping from a JSON file or a saved template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			payload := map[string]any{}
			switch {
			case mappingFile != "":
				data, err := os.ReadFile(mappingFile)
				if err != nil {
					return err
				}
				var columns []map[string]any
				if err := json.Unmarshal(data, &columns); err != nil {
					return fmt.Errorf("mapping file must be a JSON array of columns: %w", err)
				}
				payload["columns"] = columns
			case templateID != "":
				payload["template_id"] = templateID
			default:
				return fmt.Errorf("either --mapping or --template is required")
			}
			if saveTemplate != "" {
				payload["save_template_name"] = saveTemplate
			}

			var out map[string]any
			if err := client.postJSON("/api/imports/"+args[0]+"/mapping", payload, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVarP(&mappingFile, "mapping", "m", "", "JSON file with column mappings")
	cmd.Flags().StringVar(&templateID, "template", "", "saved template UUID to apply")
	cmd.Flags().StringVar(&saveTemplate, "save-as", "", "save the applied mapping as a named template")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <batch-id>",
		Short: "Run validation over the staged rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := client.postJSON("/api/imports/"+args[0]+"/validate", struct{}{}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newCommitCmd() *cobra.Command {
	var (
		dryRun  bool
		exclude []string
	)
	cmd := &cobra.Command{
		Use:   "commit <batch-id>",
		Short: "Commit a validated batch (or dry-run it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			payload := map[string]any{"dry_run": dryRun}
			if len(exclude) > 0 {
				payload["excluded_rows"] = exclude
			}
			var out map[string]any
			if err := client.postJSON("/api/imports/"+args[0]+"/commit", payload, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report outcomes without writing")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "preview row UUIDs to skip")
	return cmd
}

func newRollbackCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "rollback <batch-id>",
		Short: "Reverse a committed batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return fmt.Errorf("--reason is required")
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := client.postJSON("/api/imports/"+args[0]+"/rollback", map[string]string{"reason": reason}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the batch is being rolled back")
	return cmd
}

func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage saved mapping templates",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the tenant's mapping templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := client.getJSON("/api/templates", &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <template-id>",
		Short: "Delete a mapping template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.do("DELETE", "/api/templates/"+args[0], nil, "", nil); err != nil {
				return err
			}
			fmt.Println("deleted")
			return nil
		},
	})
	return cmd
}
