// Package verify orchestrates one verification pass: claim extraction,
// then every checking layer in declared order over the same claim and
// record set, aggregated into a single pass/fail result.
//
// The pass is synchronous and single-threaded with no internal I/O.
// Independent requests may run concurrently; an Engine is immutable
// after construction.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/receipts/internal/binder"
	"github.com/roach88/receipts/internal/citation"
	"github.com/roach88/receipts/internal/extract"
	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/guard"
	"github.com/roach88/receipts/internal/mathcheck"
	"github.com/roach88/receipts/internal/policy"
)

// Request is one verification job.
type Request struct {
	// RequestID correlates logs and the audit trail. Optional.
	RequestID string

	// Narrative is the report text under verification.
	Narrative string

	// Records are the structured sources claims must bind against.
	Records []fact.StructuredRecord

	// Role is the caller's role, consulted by privacy redaction.
	Role string

	// Now anchors freshness checks. Zero means wall clock; replays and
	// tests pass a fixed instant.
	Now time.Time
}

// Result is the aggregate outcome of one pass.
type Result struct {
	OK                bool                     `json:"ok"`
	RedactedNarrative string                   `json:"redacted_narrative"`
	Claims            []fact.NumericClaim      `json:"claims"`
	Bindings          []fact.ClaimBinding      `json:"bindings"`
	Checks            []mathcheck.Check        `json:"checks,omitempty"`
	Citation          fact.CitationReport      `json:"citation"`
	Issues            []fact.Issue             `json:"issues,omitempty"`
	Summary           fact.VerificationSummary `json:"summary"`
}

// Engine runs verification passes under one policy. Safe for
// concurrent use.
type Engine struct {
	extractor *extract.Extractor
	stages    []Stage
}

// New builds an engine with the standard stage order: citation,
// binding, math, cross-source, sanity, privacy. Privacy runs last so
// earlier stages see offsets into the original narrative.
func New(p policy.Policy) *Engine {
	keep := make([]string, 0, len(p.Citation.AllowedPrefixes)+len(p.Citation.Synonyms))
	keep = append(keep, p.Citation.AllowedPrefixes...)
	for alias := range p.Citation.Synonyms {
		keep = append(keep, alias)
	}

	return &Engine{
		extractor: extract.New(p.Extract, p.Citation),
		stages: []Stage{
			citationStage{enforcer: citation.NewEnforcer(p.Citation)},
			bindingStage{binder: binder.New(p.Tolerance)},
			mathStage{checker: mathcheck.New(p.Math)},
			crossStage{checker: guard.NewCross(p.Cross)},
			sanityStage{checker: guard.NewSanity(p.Sanity)},
			privacyStage{redactor: guard.NewRedactor(p.Privacy, keep)},
		},
	}
}

// Verify runs the full pipeline over one request. Stage results
// accumulate even past failures; the only error is cancellation.
func (e *Engine) Verify(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	now := req.Now
	if now.IsZero() {
		now = start
	}

	state := &PassState{
		Text:    req.Narrative,
		Claims:  e.extractor.Extract(req.Narrative),
		Records: req.Records,
		Role:    req.Role,
		Now:     now,
	}
	slog.Debug("claims extracted",
		"request_id", req.RequestID,
		"claims", len(state.Claims),
		"records", len(req.Records))

	var issues []fact.Issue
	summary := fact.VerificationSummary{Claims: len(state.Claims)}
	for _, stage := range e.stages {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("verification cancelled before %s stage: %w", stage.Name(), err)
		}
		found := stage.Run(ctx, state)
		issues = append(issues, found...)

		errs, warns, infos := fact.CountBySeverity(found)
		summary.Layers = append(summary.Layers, fact.LayerSummary{
			Layer:    stage.Name(),
			Checks:   state.counts[stage.Name()],
			Errors:   errs,
			Warnings: warns,
			Infos:    infos,
		})
		summary.Errors += errs
		summary.Warnings += warns
		summary.Infos += infos
		slog.Debug("stage complete",
			"request_id", req.RequestID,
			"stage", stage.Name(),
			"issues", len(found))
	}

	for _, b := range state.Bindings {
		if b.Matched {
			summary.Matched++
		}
	}
	summary.OK = !fact.HasError(issues)

	slog.Info("verification complete",
		"request_id", req.RequestID,
		"ok", summary.OK,
		"claims", summary.Claims,
		"matched", summary.Matched,
		"errors", summary.Errors,
		"warnings", summary.Warnings,
		"duration_ms", time.Since(start).Milliseconds())

	return Result{
		OK:                summary.OK,
		RedactedNarrative: state.Text,
		Claims:            state.Claims,
		Bindings:          state.Bindings,
		Checks:            state.Checks,
		Citation:          state.Citation,
		Issues:            issues,
		Summary:           summary,
	}, nil
}
