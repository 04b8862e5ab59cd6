package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/receipts/internal/audit"
	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
	"github.com/roach88/receipts/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
}

// ShowReport is the show command's output payload: the manifest
// summary plus the pack integrity verdict.
type ShowReport struct {
	AuditID         string                   `json:"audit_id"`
	CreatedAt       string                   `json:"created_at"`
	RequestID       string                   `json:"request_id,omitempty"`
	CodeVersion     string                   `json:"code_version"`
	RegistryVersion string                   `json:"registry_version,omitempty"`
	Sources         []string                 `json:"sources"`
	ReferenceIDs    []string                 `json:"reference_ids"`
	Citation        fact.CitationReport      `json:"citation"`
	Verification    fact.VerificationSummary `json:"verification"`
	Digest          string                   `json:"digest"`
	KeyID           string                   `json:"key_id,omitempty"`
	Files           int                      `json:"files"`
	Clean           bool                     `json:"clean"`
	Problems        []string                 `json:"problems,omitempty"`
	Notes           []string                 `json:"notes,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <audit-id>",
		Short: "Show an audit pack and check its integrity",
		Long: `Print the manifest summary for one audit pack and verify its
integrity: the canonical digest is re-derived, every indexed file is
rehashed, and the signature is checked when a verification key is held.

Exit codes:
  0 - Pack shown, integrity clean
  1 - Pack tampered with or incomplete
  2 - Command error (unknown audit id)

Examples:
  receipts show 01890a5d-ac96-774b-bcce-b302099a8057
  receipts show 01890a5d-ac96-774b-bcce-b302099a8057 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0], cmd)
		},
	}

	return cmd
}

func runShow(opts *ShowOptions, auditID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	m, err := st.Load(ctx, auditID)
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("audit %s not found", auditID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "load audit", err)
	}

	ring, err := audit.KeyringFromEnv()
	if err != nil {
		return WrapExitError(ExitCommandError, "load verification keys", err)
	}
	builder := audit.NewBuilder(policy.Default(), audit.WithKeyring(ring))
	integrity, err := builder.VerifyPack(ctx, st.Dir(auditID))
	if err != nil {
		return WrapExitError(ExitCommandError, "verify pack", err)
	}

	report := showReportFor(m, integrity)
	if opts.Format == "json" {
		return outputShowJSON(cmd, report)
	}
	return outputShowText(cmd, report)
}

func showReportFor(m fact.Manifest, integrity audit.VerifyResult) ShowReport {
	report := ShowReport{
		AuditID:         m.AuditID,
		CreatedAt:       m.CreatedAt,
		RequestID:       m.RequestID,
		CodeVersion:     m.CodeVersion,
		RegistryVersion: m.RegistryVersion,
		Sources:         m.Sources,
		ReferenceIDs:    m.ReferenceIDs,
		Citation:        m.Citation,
		Verification:    m.Verification,
		Digest:          m.Digest,
		Files:           len(m.Files),
		Clean:           integrity.Clean,
		Problems:        integrity.Problems,
		Notes:           integrity.Notes,
	}
	if m.Signature != nil {
		report.KeyID = m.Signature.KeyID
	}
	return report
}

func outputShowText(cmd *cobra.Command, report ShowReport) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "audit      %s\n", report.AuditID)
	fmt.Fprintf(w, "created    %s\n", report.CreatedAt)
	if report.RequestID != "" {
		fmt.Fprintf(w, "request    %s\n", report.RequestID)
	}
	fmt.Fprintf(w, "code       %s\n", report.CodeVersion)
	if report.RegistryVersion != "" {
		fmt.Fprintf(w, "registry   %s\n", report.RegistryVersion)
	}
	fmt.Fprintf(w, "sources    %s\n", strings.Join(report.Sources, ", "))
	fmt.Fprintf(w, "refs       %s\n", strings.Join(report.ReferenceIDs, ", "))
	fmt.Fprintf(w, "citation   %d/%d cited\n", report.Citation.Cited, report.Citation.Total)

	status := "✗ failed"
	if report.Verification.OK {
		status = "✓ ok"
	}
	fmt.Fprintf(w, "verify     %s  claims %d  matched %d  errors %d  warnings %d\n",
		status, report.Verification.Claims, report.Verification.Matched,
		report.Verification.Errors, report.Verification.Warnings)

	fmt.Fprintf(w, "digest     %s\n", report.Digest)
	if report.KeyID != "" {
		fmt.Fprintf(w, "signature  %s\n", report.KeyID)
	} else {
		fmt.Fprintln(w, "signature  none")
	}
	fmt.Fprintf(w, "files      %d\n", report.Files)

	if report.Clean {
		fmt.Fprintln(w, "integrity  ✓ clean")
	} else {
		fmt.Fprintln(w, "integrity  ✗ TAMPERED")
		for _, p := range report.Problems {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	}
	for _, n := range report.Notes {
		fmt.Fprintf(w, "  note: %s\n", n)
	}

	if !report.Clean {
		return NewExitError(ExitFailure, "audit pack integrity check failed")
	}
	return nil
}

func outputShowJSON(cmd *cobra.Command, report ShowReport) error {
	resp := CLIResponse{Status: "ok", Data: report}
	if !report.Clean {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    ErrCodeTampered,
			Message: fmt.Sprintf("%d integrity problem(s)", len(report.Problems)),
			Details: report.Problems,
		}
	}
	if err := encodeResponse(cmd.OutOrStdout(), resp); err != nil {
		return err
	}

	if !report.Clean {
		return NewExitError(ExitFailure, "audit pack integrity check failed")
	}
	return nil
}
