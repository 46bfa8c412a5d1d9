package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a CSV/TSV/XLSX file and create an import batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := client.uploadFile("/api/imports", args[0], &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newListCmd() *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List import batches for the tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			query := url.Values{}
			query.Set("limit", fmt.Sprint(limit))
			query.Set("offset", fmt.Sprint(offset))
			if status != "" {
				query.Set("status", status)
			}
			var out map[string]any
			if err := client.getJSON("/api/imports?"+query.Encode(), &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by batch status")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show one batch with its preview page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := client.getJSON("/api/imports/"+args[0], &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <batch-id>",
		Short: "Cancel a batch that has not committed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			var out map[string]any
			if err := client.postJSON("/api/imports/"+args[0]+"/cancel", struct{}{}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newReportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "report <batch-id>",
		Short: "Download the batch error report as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			dest := output
			if dest == "" {
				dest = "import-errors-" + args[0] + ".csv"
			}
			if err := client.download("/api/imports/"+args[0]+"/errors.csv", dest); err != nil {
				return err
			}
			fmt.Println("wrote", dest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default import-errors-<id>.csv)")
	return cmd
}
