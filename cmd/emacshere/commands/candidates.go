package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/emacshere/internal/app"
	"github.com/bryanchriswhite/emacshere/internal/window"
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List the windows a path could be dropped on",
	Long: `List every top-level window of the target class, whether it is visible,
and its last user activity time. The window marked best is the one a path
would be opened in.`,
	Example: `  # List candidates in table format (default)
  emacshere candidates

  # List candidates in JSON format
  emacshere candidates --format json`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runCandidates,
}

var candidatesFormat string

func init() {
	rootCmd.AddCommand(candidatesCmd)

	candidatesCmd.Flags().StringVarP(&candidatesFormat, "format", "f", "table", "output format (table or json)")
}

func runCandidates(cmd *cobra.Command, args []string) error {
	if candidatesFormat != "table" && candidatesFormat != "json" {
		return &usageError{err: fmt.Errorf("unsupported format: %s (use 'table' or 'json')", candidatesFormat)}
	}

	listing, err := newRunner().List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if candidatesFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(listing)
	}
	return printCandidatesTable(out, listing)
}

func printCandidatesTable(out io.Writer, listing *app.Listing) error {
	if len(listing.Windows) == 0 {
		fmt.Fprintf(out, "No %s windows found\n", listing.Class)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "WINDOW\tVISIBLE\tUSER TIME\tBEST\tTITLE")
	fmt.Fprintln(w, "------\t-------\t---------\t----\t-----")

	for _, l := range listing.Windows {
		visible, best := "No", ""
		if l.Visible {
			visible = "Yes"
		}
		if l.Best {
			best = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", window.FormatID(l.Window), visible, l.UserTime, best, l.Title)
	}

	return nil
}
