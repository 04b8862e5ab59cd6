package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/receipts/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Limit     int
	RequestID string
	Failed    bool
}

// ListRow is one indexed audit in list output.
type ListRow struct {
	AuditID   string   `json:"audit_id"`
	CreatedAt string   `json:"created_at"`
	RequestID string   `json:"request_id,omitempty"`
	OK        bool     `json:"ok"`
	Claims    int      `json:"claims"`
	Matched   int      `json:"matched"`
	Errors    int      `json:"errors"`
	Warnings  int      `json:"warnings"`
	Sources   []string `json:"sources,omitempty"`
}

// ListResult is the list command's output payload.
type ListResult struct {
	Audits []ListRow `json:"audits"`
	Total  int       `json:"total"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed audits, newest first",
		Long: `Query the audit index.

Examples:
  receipts list
  receipts list --limit 5
  receipts list --request-id req-2025-08-23-001
  receipts list --failed --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum audits listed")
	cmd.Flags().StringVar(&opts.RequestID, "request-id", "", "list audits for one request id")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "list only failed verifications")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	if opts.RequestID != "" && opts.Failed {
		return NewExitError(ExitCommandError, "--request-id and --failed are mutually exclusive")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	rows, err := queryIndex(ctx, st, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "query index", err)
	}

	result := ListResult{Audits: make([]ListRow, 0, len(rows)), Total: len(rows)}
	for _, r := range rows {
		result.Audits = append(result.Audits, ListRow{
			AuditID:   r.AuditID,
			CreatedAt: r.CreatedAt,
			RequestID: r.RequestID,
			OK:        r.OK,
			Claims:    r.Claims,
			Matched:   r.Matched,
			Errors:    r.Errors,
			Warnings:  r.Warnings,
			Sources:   r.Sources,
		})
	}

	if opts.Format == "json" {
		return encodeResponse(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
	}
	return outputListText(cmd, result)
}

func queryIndex(ctx context.Context, st *store.Store, opts *ListOptions) ([]store.IndexRow, error) {
	switch {
	case opts.RequestID != "":
		rows, err := st.SearchByRequestID(ctx, opts.RequestID)
		return capRows(rows, opts.Limit), err
	case opts.Failed:
		rows, err := st.ListFailedVerifications(ctx)
		return capRows(rows, opts.Limit), err
	default:
		return st.ListRecent(ctx, opts.Limit)
	}
}

func capRows(rows []store.IndexRow, limit int) []store.IndexRow {
	if limit >= 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

func outputListText(cmd *cobra.Command, result ListResult) error {
	out := cmd.OutOrStdout()
	if result.Total == 0 {
		fmt.Fprintln(out, "No audits indexed.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AUDIT ID\tCREATED\tSTATUS\tMATCHED\tERR\tWARN\tREQUEST")
	for _, r := range result.Audits {
		status := "ok"
		if !r.OK {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%d\t%s\n",
			r.AuditID, r.CreatedAt, status, r.Matched, r.Claims, r.Errors, r.Warnings, r.RequestID)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d audit(s)\n", result.Total)
	return nil
}
