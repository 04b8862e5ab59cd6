package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
	"github.com/roach88/receipts/internal/verify"
)

// scenarioEpoch is the fixed verification instant scenarios run at
// unless they set now. Freshness outcomes must not depend on when the
// test suite happens to run.
var scenarioEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Result is the outcome of executing one scenario.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Verification is the full engine result, kept for debugging and
	// golden snapshots.
	Verification verify.Result `json:"verification"`

	// Errors lists the expectations that failed. Empty when Pass.
	Errors []string `json:"errors,omitempty"`
}

// AddError records a failed expectation and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run executes a scenario against a fresh engine and evaluates its
// expectations. The returned error covers malformed scenarios only;
// expectation failures land in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	records := make([]fact.StructuredRecord, 0, len(scenario.Records))
	for i, fixture := range scenario.Records {
		rec, err := fixture.ToRecord()
		if err != nil {
			return nil, fmt.Errorf("scenario %s records[%d]: %w", scenario.Name, i, err)
		}
		records = append(records, rec)
	}

	pol := scenarioPolicy(scenario, records)

	now := scenarioEpoch
	if scenario.Now != "" {
		parsed, err := time.Parse(time.RFC3339, scenario.Now)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: bad now: %w", scenario.Name, err)
		}
		now = parsed
	}

	engine := verify.New(pol)
	verification, err := engine.Verify(context.Background(), verify.Request{
		RequestID: "scenario/" + scenario.Name,
		Narrative: scenario.Narrative,
		Records:   records,
		Role:      scenario.Role,
		Now:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := &Result{Pass: true, Scenario: scenario.Name, Verification: verification}
	checkExpectation(scenario.Expect, verification, result)
	return result, nil
}

// scenarioPolicy builds the policy a scenario runs under: the default,
// source labels derived from the fixtures when the scenario does not
// override them, then the explicit overrides.
func scenarioPolicy(scenario *Scenario, records []fact.StructuredRecord) policy.Policy {
	pol := WithDerivedPrefixes(policy.Default(), records)
	return scenario.Policy.apply(pol)
}
