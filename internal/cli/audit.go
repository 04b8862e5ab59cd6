package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/receipts/internal/audit"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*VerifyOptions
	Registry string
	Replay   bool
	Meta     map[string]string
}

// AuditReport is the audit command's output payload.
type AuditReport struct {
	AuditID string `json:"audit_id"`
	Dir     string `json:"dir"`
	Signed  bool   `json:"signed"`
	KeyID   string `json:"key_id,omitempty"`
	VerifyReport
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{VerifyOptions: &VerifyOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify and commit a tamper-evident audit pack",
		Long: `Run a full verification pass, write the audit pack, and index it.

The pack holds the redacted narrative, evidence and source extracts,
the verification reports, and a manifest whose canonical digest makes
later tampering detectable. When ` + audit.EnvHMACKey + ` holds a hex
key, the manifest is also HMAC-signed.

The pack is committed whatever the verification outcome; a failed pass
still exits 1 after the pack is on disk.

Exit codes:
  0 - Verification passed, pack committed
  1 - Verification failed, pack committed
  2 - Command error (unreadable fixtures, store not writable)

Examples:
  receipts audit --narrative report.md --records records.yaml
  receipts audit --narrative report.md --records records.yaml --registry registry-2025w34
  receipts audit --narrative report.md --records records.yaml --meta run=nightly --replay`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	addVerifyFlags(cmd, opts.VerifyOptions)
	cmd.Flags().StringVar(&opts.Registry, "registry", "", "source registry version recorded in the manifest")
	cmd.Flags().BoolVar(&opts.Replay, "replay", false, "include a replay stub in the pack")
	cmd.Flags().StringToStringVar(&opts.Meta, "meta", nil, "metadata recorded verbatim (key=value)")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	in, err := loadPassInputs(opts.VerifyOptions)
	if err != nil {
		return err
	}

	result, err := runPass(opts.VerifyOptions, in, cmd)
	if err != nil {
		return err
	}

	ring, err := audit.KeyringFromEnv()
	if err != nil {
		return WrapExitError(ExitCommandError, "load signing keys", err)
	}
	builder := audit.NewBuilder(in.Policy, audit.WithKeyring(ring))

	genIn := audit.GenerateInput{
		RequestID:       opts.RequestID,
		RegistryVersion: opts.Registry,
		Result:          result,
		Records:         in.Records,
		Metadata:        opts.Meta,
		Replay:          opts.Replay,
	}
	manifest, err := builder.Generate(genIn)
	if err != nil {
		return WrapExitError(ExitCommandError, "generate manifest", err)
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	dir, err := builder.Write(ctx, st.Root(), manifest, genIn)
	if err != nil {
		return WrapExitError(ExitCommandError, "write audit pack", err)
	}

	// The committed manifest carries the file index, digest, and
	// signature; reload it for the index row.
	committed, err := st.Load(ctx, manifest.AuditID)
	if err != nil {
		return WrapExitError(ExitCommandError, "reload committed manifest", err)
	}
	if err := st.Upsert(ctx, committed); err != nil {
		return WrapExitError(ExitCommandError, "index audit", err)
	}

	report := AuditReport{
		AuditID:      committed.AuditID,
		Dir:          dir,
		Signed:       committed.Signature != nil,
		VerifyReport: reportFor(opts.RequestID, result),
	}
	if committed.Signature != nil {
		report.KeyID = committed.Signature.KeyID
	}

	if opts.Format == "json" {
		return outputAuditJSON(cmd, report)
	}
	return outputAuditText(cmd, report)
}

func outputAuditText(cmd *cobra.Command, report AuditReport) error {
	w := cmd.OutOrStdout()

	if report.OK {
		fmt.Fprintf(w, "✓ audit %s committed\n", report.AuditID)
	} else {
		fmt.Fprintf(w, "✗ verification failed; audit %s committed\n", report.AuditID)
	}
	fmt.Fprintf(w, "  pack    %s\n", report.Dir)
	if report.Signed {
		fmt.Fprintf(w, "  signed  key %s\n", report.KeyID)
	} else {
		fmt.Fprintln(w, "  signed  no")
	}
	fmt.Fprintf(w, "  claims %d  matched %d  errors %d  warnings %d\n",
		report.Claims, report.Matched, report.Errors, report.Warnings)
	for _, is := range report.Issues {
		fmt.Fprintf(w, "  [%s] %s (%s): %s\n", is.Layer, is.Code, is.Severity, is.Message)
	}

	if !report.OK {
		return NewExitError(ExitFailure, "verification failed")
	}
	return nil
}

func outputAuditJSON(cmd *cobra.Command, report AuditReport) error {
	resp := CLIResponse{Status: "ok", Data: report}
	if !report.OK {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    ErrCodeVerifyFailed,
			Message: fmt.Sprintf("%d error(s), %d warning(s)", report.Errors, report.Warnings),
		}
	}
	if err := encodeResponse(cmd.OutOrStdout(), resp); err != nil {
		return err
	}

	if !report.OK {
		return NewExitError(ExitFailure, "verification failed")
	}
	return nil
}
