package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/receipts/internal/audit"
	"github.com/roach88/receipts/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Dest string
	Dir  bool
}

// ExportReport is the export command's output payload.
type ExportReport struct {
	AuditID string `json:"audit_id"`
	Dest    string `json:"dest"`
	Layout  string `json:"layout"` // "tar.gz" | "dir"
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <audit-id>",
		Short: "Export an audit pack for external review",
		Long: `Copy one audit pack out of the store, as a gzipped tarball by
default or an uncompressed directory with --dir. The export is
byte-identical to the stored pack, so its manifest digest still
verifies at the destination.

Examples:
  receipts export 01890a5d-ac96-774b-bcce-b302099a8057 --dest audit.tar.gz
  receipts export 01890a5d-ac96-774b-bcce-b302099a8057 --dest ./review --dir`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dest, "dest", "", "destination path (required)")
	cmd.Flags().BoolVar(&opts.Dir, "dir", false, "export as a directory instead of a tarball")
	_ = cmd.MarkFlagRequired("dest")

	return cmd
}

func runExport(opts *ExportOptions, auditID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	if _, err := st.Load(ctx, auditID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("audit %s not found", auditID))
		}
		return WrapExitError(ExitCommandError, "load audit", err)
	}

	report := ExportReport{AuditID: auditID, Dest: opts.Dest, Layout: "tar.gz"}
	if opts.Dir {
		report.Layout = "dir"
		err = audit.ExportDir(st.Dir(auditID), opts.Dest)
	} else {
		err = audit.ExportArchive(st.Dir(auditID), opts.Dest)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "export audit", err)
	}

	if opts.Format == "json" {
		return encodeResponse(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: report})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ exported %s to %s\n", auditID, opts.Dest)
	return nil
}
