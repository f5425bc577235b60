package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the targets a running gateway exposes as models",
	RunE: func(c *cobra.Command, _ []string) error {
		base, err := gatewayBase()
		if err != nil {
			return err
		}
		return listModels(c.Context(), base, os.Stdout)
	},
}

func listModels(ctx context.Context, base string, w io.Writer) error {
	client := newClient(base)
	page, err := client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNED BY")
	for _, m := range page.Data {
		fmt.Fprintf(tw, "%s\t%s\n", m.ID, m.OwnedBy)
	}
	return tw.Flush()
}

func init() {
	modelsCmd.Flags().StringVar(&gatewayURL, "url", "", "gateway base URL (default from config)")
	rootCmd.AddCommand(modelsCmd)
}
