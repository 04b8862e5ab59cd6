package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/receipts/internal/store"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	MaxAge string
	DryRun bool
}

// PruneReport is the prune command's output payload.
type PruneReport struct {
	Cutoff string   `json:"cutoff"`
	DryRun bool     `json:"dry_run,omitempty"`
	Pruned []string `json:"pruned"`
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove audit packs past the retention age",
		Long: `Delete every audit pack created before the retention cutoff, from
disk and from the index. Stale index rows whose packs are already gone
are swept too. Prune is idempotent; a second run removes nothing.

Examples:
  receipts prune --max-age 90d
  receipts prune --max-age 2160h --dry-run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MaxAge, "max-age", "90d", "retention age, a day count like 90d or a duration like 2160h")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would be pruned without deleting")

	return cmd
}

func runPrune(opts *PruneOptions, cmd *cobra.Command) error {
	age, err := parseMaxAge(opts.MaxAge)
	if err != nil {
		return WrapExitError(ExitCommandError, "parse --max-age", err)
	}
	cutoff := time.Now().UTC().Add(-age)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	var pruned []string
	if opts.DryRun {
		pruned, err = pruneCandidates(ctx, st, cutoff)
		if err != nil {
			return WrapExitError(ExitCommandError, "scan store", err)
		}
	} else {
		pruned, err = st.Prune(ctx, cutoff)
		if err != nil {
			return WrapExitError(ExitCommandError, "prune store", err)
		}
	}

	report := PruneReport{
		Cutoff: cutoff.Format(time.RFC3339),
		DryRun: opts.DryRun,
		Pruned: pruned,
	}
	if opts.Format == "json" {
		return encodeResponse(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: report})
	}
	return outputPruneText(cmd, report)
}

// parseMaxAge reads a retention age: a bare day count like "90d" or a
// standard duration like "2160h".
func parseMaxAge(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("bad age %q: want a day count like 90d or a duration like 2160h", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("bad age %q: want a day count like 90d or a duration like 2160h", s)
	}
	return d, nil
}

// pruneCandidates lists the packs a real prune would remove, using the
// same selection: manifest creation time strictly before the cutoff,
// packs with unparseable timestamps kept.
func pruneCandidates(ctx context.Context, st *store.Store, cutoff time.Time) ([]string, error) {
	ids, err := st.List(ctx)
	if err != nil {
		return nil, err
	}

	candidates := []string{}
	for _, id := range ids {
		m, err := st.Load(ctx, id)
		if err != nil {
			continue
		}
		created, err := time.Parse(time.RFC3339, m.CreatedAt)
		if err != nil {
			continue
		}
		if created.Before(cutoff) {
			candidates = append(candidates, id)
		}
	}
	sort.Strings(candidates)
	return candidates, nil
}

func outputPruneText(cmd *cobra.Command, report PruneReport) error {
	w := cmd.OutOrStdout()

	if len(report.Pruned) == 0 {
		fmt.Fprintf(w, "Nothing to prune before %s.\n", report.Cutoff)
		return nil
	}

	verb := "pruned"
	if report.DryRun {
		verb = "would prune"
	}
	fmt.Fprintf(w, "✓ %s %d audit(s) older than %s\n", verb, len(report.Pruned), report.Cutoff)
	for _, id := range report.Pruned {
		fmt.Fprintf(w, "  %s\n", id)
	}
	return nil
}
