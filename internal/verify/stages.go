package verify

import (
	"context"
	"time"

	"github.com/roach88/receipts/internal/binder"
	"github.com/roach88/receipts/internal/citation"
	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/guard"
	"github.com/roach88/receipts/internal/mathcheck"
)

// PassState is the mutable state one verification pass threads through
// its stages. Stages append to it; the privacy stage rewrites Text.
type PassState struct {
	Text    string
	Claims  []fact.NumericClaim
	Records []fact.StructuredRecord
	Role    string
	Now     time.Time

	Bindings []fact.ClaimBinding
	Citation fact.CitationReport
	Checks   []mathcheck.Check

	counts map[string]int
}

// Count records how many subjects a layer examined, one row of the
// final summary table.
func (s *PassState) Count(layer string, n int) {
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	s.counts[layer] = n
}

// Stage is one verification layer. Run reads and extends the pass
// state and returns the issues it found; it must not retain state.
type Stage interface {
	Name() string
	Run(ctx context.Context, state *PassState) []fact.Issue
}

type citationStage struct{ enforcer *citation.Enforcer }

func (citationStage) Name() string { return fact.LayerCitation }

func (s citationStage) Run(_ context.Context, st *PassState) []fact.Issue {
	report, issues := s.enforcer.Check(st.Text, st.Claims, st.Records)
	st.Citation = report
	st.Count(fact.LayerCitation, report.Total)
	return issues
}

type bindingStage struct{ binder *binder.Binder }

func (bindingStage) Name() string { return fact.LayerBinding }

func (s bindingStage) Run(_ context.Context, st *PassState) []fact.Issue {
	bindings, issues := s.binder.BindAll(st.Claims, st.Records)
	st.Bindings = bindings
	st.Count(fact.LayerBinding, len(bindings))
	return issues
}

type mathStage struct{ checker *mathcheck.Checker }

func (mathStage) Name() string { return fact.LayerMath }

func (s mathStage) Run(_ context.Context, st *PassState) []fact.Issue {
	checks, issues := s.checker.Run(st.Text)
	st.Checks = checks
	st.Count(fact.LayerMath, len(checks))
	return issues
}

type crossStage struct{ checker *guard.CrossChecker }

func (crossStage) Name() string { return fact.LayerCross }

func (s crossStage) Run(_ context.Context, st *PassState) []fact.Issue {
	st.Count(fact.LayerCross, len(st.Records))
	return s.checker.Check(st.Records)
}

type sanityStage struct{ checker *guard.SanityChecker }

func (sanityStage) Name() string { return fact.LayerSanity }

func (s sanityStage) Run(_ context.Context, st *PassState) []fact.Issue {
	st.Count(fact.LayerSanity, len(st.Records))
	return s.checker.Check(st.Records, st.Now)
}

// privacyStage runs last: it rewrites the narrative, so every earlier
// stage sees claim offsets into the original text.
type privacyStage struct{ redactor *guard.Redactor }

func (privacyStage) Name() string { return fact.LayerPrivacy }

func (s privacyStage) Run(_ context.Context, st *PassState) []fact.Issue {
	text, issues := s.redactor.Redact(st.Text, st.Role)
	st.Text = text
	issues = append(issues, s.redactor.CheckGroupSizes(st.Records)...)
	st.Count(fact.LayerPrivacy, len(st.Records)+1)
	return issues
}
