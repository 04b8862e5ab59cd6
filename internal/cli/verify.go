package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/harness"
	"github.com/roach88/receipts/internal/policy"
	"github.com/roach88/receipts/internal/verify"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Narrative string
	Records   string
	Policy    string
	RequestID string
	Role      string
	Now       string
}

// IssueReport is one verification issue in CLI output.
type IssueReport struct {
	Layer    string `json:"layer"`
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// VerifyReport is the verification summary payload shared by the
// verify and audit commands.
type VerifyReport struct {
	RequestID string        `json:"request_id,omitempty"`
	OK        bool          `json:"ok"`
	Claims    int           `json:"claims"`
	Matched   int           `json:"matched"`
	Errors    int           `json:"errors"`
	Warnings  int           `json:"warnings"`
	Issues    []IssueReport `json:"issues"`
	Narrative string        `json:"redacted_narrative,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a narrative against source records",
		Long: `Run a verification pass without writing an audit pack.

The narrative's numeric claims are checked against the records file:
citation coverage, claim-to-record binding, derived-value math,
cross-source agreement, sanity rules, and privacy guards.

Exit codes:
  0 - Verification passed
  1 - Verification failed
  2 - Command error (unreadable fixtures, bad policy)

Examples:
  receipts verify --narrative report.md --records records.yaml
  receipts verify --narrative report.md --records records.yaml --policy policy.cue
  receipts verify --narrative report.md --records records.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	addVerifyFlags(cmd, opts)
	return cmd
}

func addVerifyFlags(cmd *cobra.Command, opts *VerifyOptions) {
	cmd.Flags().StringVar(&opts.Narrative, "narrative", "", "narrative file to verify")
	cmd.Flags().StringVar(&opts.Records, "records", "", "YAML records fixture file")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "CUE policy file or directory (default built-in)")
	cmd.Flags().StringVar(&opts.RequestID, "request-id", "", "request id recorded with the pass")
	cmd.Flags().StringVar(&opts.Role, "role", "", "reader role for privacy redaction")
	cmd.Flags().StringVar(&opts.Now, "now", "", "verification instant (RFC 3339), for reproducing past passes")
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	in, err := loadPassInputs(opts)
	if err != nil {
		return err
	}

	result, err := runPass(opts, in, cmd)
	if err != nil {
		return err
	}

	report := reportFor(opts.RequestID, result)
	if opts.Format == "json" {
		return outputVerifyJSON(cmd, report)
	}
	return outputVerifyText(cmd, report)
}

// passInputs holds the loaded fixtures for one verification pass.
type passInputs struct {
	Narrative string
	Records   []fact.StructuredRecord
	Policy    policy.Policy
}

func loadPassInputs(opts *VerifyOptions) (passInputs, error) {
	if opts.Narrative == "" && opts.Records == "" {
		return passInputs{}, NewExitError(ExitCommandError, "at least one of --narrative and --records is required")
	}

	var in passInputs
	if opts.Narrative != "" {
		narrative, err := loadNarrative(opts.Narrative)
		if err != nil {
			return passInputs{}, err
		}
		in.Narrative = narrative
	}
	if opts.Records != "" {
		records, err := loadRecords(opts.Records)
		if err != nil {
			return passInputs{}, err
		}
		in.Records = records
	}

	pol, err := loadPolicy(opts.Policy)
	if err != nil {
		return passInputs{}, err
	}
	in.Policy = pol

	// With no policy file, the sources the records name are citable.
	// An explicit policy keeps its own label list, even an empty one.
	if opts.Policy == "" {
		in.Policy = harness.WithDerivedPrefixes(in.Policy, in.Records)
	}
	return in, nil
}

// runPass executes one verification pass over the loaded inputs.
func runPass(opts *VerifyOptions, in passInputs, cmd *cobra.Command) (verify.Result, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var now time.Time
	if opts.Now != "" {
		parsed, err := time.Parse(time.RFC3339, opts.Now)
		if err != nil {
			return verify.Result{}, WrapExitError(ExitCommandError, "parse --now", err)
		}
		now = parsed
	}

	engine := verify.New(in.Policy)
	result, err := engine.Verify(ctx, verify.Request{
		RequestID: opts.RequestID,
		Narrative: in.Narrative,
		Records:   in.Records,
		Role:      opts.Role,
		Now:       now,
	})
	if err != nil {
		return verify.Result{}, WrapExitError(ExitCommandError, "verification pass", err)
	}
	return result, nil
}

func reportFor(requestID string, result verify.Result) VerifyReport {
	issues := make([]IssueReport, 0, len(result.Issues))
	for _, is := range result.Issues {
		issues = append(issues, IssueReport{
			Layer:    is.Layer,
			Code:     is.Code,
			Severity: string(is.Severity),
			Message:  is.Message,
		})
	}
	return VerifyReport{
		RequestID: requestID,
		OK:        result.OK,
		Claims:    result.Summary.Claims,
		Matched:   result.Summary.Matched,
		Errors:    result.Summary.Errors,
		Warnings:  result.Summary.Warnings,
		Issues:    issues,
		Narrative: result.RedactedNarrative,
	}
}

func outputVerifyText(cmd *cobra.Command, report VerifyReport) error {
	w := cmd.OutOrStdout()

	if report.OK {
		fmt.Fprintln(w, "✓ verification passed")
	} else {
		fmt.Fprintln(w, "✗ verification failed")
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

func outputVerifyJSON(cmd *cobra.Command, report VerifyReport) error {
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
