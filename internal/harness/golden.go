package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/receipts/internal/verify"
)

// Snapshot is the stable reduction of a verification result used for
// golden comparison: summary counts, the issue list, and the output
// narrative. Volatile fields (timings, byte offsets) are excluded by
// construction, so goldens survive refactors that do not change
// observable behavior.
type Snapshot struct {
	Scenario  string      `json:"scenario"`
	OK        bool        `json:"ok"`
	Claims    int         `json:"claims"`
	Matched   int         `json:"matched"`
	Errors    int         `json:"errors"`
	Warnings  int         `json:"warnings"`
	Issues    []IssueLine `json:"issues"`
	Narrative string      `json:"narrative"`
}

// IssueLine is one issue in snapshot form.
type IssueLine struct {
	Layer    string `json:"layer"`
	Code     string `json:"code"`
	Severity string `json:"severity"`
}

func snapshotOf(name string, v verify.Result) Snapshot {
	issues := make([]IssueLine, 0, len(v.Issues))
	for _, is := range v.Issues {
		issues = append(issues, IssueLine{
			Layer:    is.Layer,
			Code:     is.Code,
			Severity: string(is.Severity),
		})
	}
	return Snapshot{
		Scenario:  name,
		OK:        v.OK,
		Claims:    v.Summary.Claims,
		Matched:   v.Summary.Matched,
		Errors:    v.Summary.Errors,
		Warnings:  v.Summary.Warnings,
		Issues:    issues,
		Narrative: v.RedactedNarrative,
	}
}

func (s Snapshot) bytes() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario, checks its expectations, and
// compares the snapshot against testdata/golden/{name}.golden.
// Regenerate goldens with go test ./internal/harness -update.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("scenario %s: %s", scenario.Name, msg)
	}

	return AssertGolden(t, scenario.Name, result.Verification)
}

// AssertGolden compares an already-obtained verification result
// against the named golden file.
func AssertGolden(t *testing.T, name string, v verify.Result) error {
	t.Helper()

	data, err := snapshotOf(name, v).bytes()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
