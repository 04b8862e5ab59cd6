package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ReindexOptions holds flags for the reindex command.
type ReindexOptions struct {
	*RootOptions
}

// ReindexReport is the reindex command's output payload.
type ReindexReport struct {
	Indexed int `json:"indexed"`
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReindexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the audit index from packs on disk",
		Long: `Drop every index row and re-derive the index from the pack
manifests on disk. The packs are the source of truth; run this after
restoring packs from backup or whenever the index looks wrong.

Example:
  receipts reindex --store ./receipts`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(opts, cmd)
		},
	}

	return cmd
}

func runReindex(opts *ReindexOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	n, err := st.Reindex(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "reindex store", err)
	}

	if opts.Format == "json" {
		return encodeResponse(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: ReindexReport{Indexed: n}})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ reindexed %d audit(s)\n", n)
	return nil
}
