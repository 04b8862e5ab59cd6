package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/receipts/internal/fact"
)

func cleanScenario() *Scenario {
	row := fact.NewRow(1)
	row.Set("retention_rate", fact.Float(87.5))
	return &Scenario{
		Name:        "clean",
		Description: "cited and bound",
		Narrative:   "Per LMIS: The retention rate is 87.5% (QID: lmis_ret_001).",
		Records: []RecordFixture{{
			RefID:   "lmis_ret_001",
			Source:  "LMIS",
			Dataset: "lmis_retention_2024q3",
			Unit:    "percent",
			Rows:    []fact.Row{row},
		}},
		Expect: Expectation{OK: ptr(true), Claims: ptr(1), Matched: ptr(1)},
	}
}

func TestRunCleanScenarioPasses(t *testing.T) {
	result, err := Run(cleanScenario())
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "clean", result.Scenario)
	assert.True(t, result.Verification.OK)
}

func TestRunReportsFailedExpectations(t *testing.T) {
	s := cleanScenario()
	s.Expect = Expectation{
		OK:      ptr(false),
		Codes:   []string{"UNCITED_CLAIM"},
		Claims:  ptr(3),
		Matched: ptr(0),
	}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	// Every failed expectation is reported, not just the first.
	assert.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "ok = true, want false")
}

func TestRunDerivesPrefixesFromRecords(t *testing.T) {
	// No policy override: LMIS must be recognized from the record
	// source, or the citation in the narrative would count as uncited.
	s := cleanScenario()
	s.Policy = nil

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunExplicitPrefixOverrideWins(t *testing.T) {
	s := cleanScenario()
	s.Policy = &PolicyOverride{AllowedPrefixes: []string{"ONS"}}
	s.Expect = Expectation{OK: ptr(false), Codes: []string{"UNCITED_CLAIM"}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunChecksRedactionExpectations(t *testing.T) {
	s := cleanScenario()
	s.Narrative += " Contact jane.doe@example.com with questions."
	s.Expect = Expectation{
		OK:       ptr(true),
		Codes:    []string{"EMAIL_REDACTED"},
		Redacted: []string{"jane.doe@example.com"},
		Kept:     []string{"[redacted-email]", "87.5%"},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunRejectsBadNow(t *testing.T) {
	s := cleanScenario()
	s.Now = "not-a-time"

	_, err := Run(s)
	require.ErrorContains(t, err, "bad now")
}

func TestRunDirAllScenariosPass(t *testing.T) {
	suite, err := RunDir(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	assert.Equal(t, 8, suite.Total)
	assert.Equal(t, suite.Total, suite.Passed)
	assert.Empty(t, suite.Failures)
}

func TestRunDirReportsBrokenScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile := func(name, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	writeScenarioFile("good.yaml", `
name: good
description: "passes"
narrative: "Churn hit 45% in the second quarter."
expect:
  ok: false
  codes: [UNCITED_CLAIM]
`)
	writeScenarioFile("broken.yaml", `
name: broken
description: "expectation cannot hold"
narrative: "Churn hit 45% in the second quarter."
expect:
  ok: true
`)
	writeScenarioFile("garbled.yaml", "{not yaml")

	suite, err := RunDir(dir)
	require.NoError(t, err)

	assert.Equal(t, 3, suite.Total)
	assert.Equal(t, 1, suite.Passed)
	assert.Equal(t, 2, suite.Failed)
	require.Len(t, suite.Failures, 2)
}

func TestRunDirEmptyDir(t *testing.T) {
	suite, err := RunDir(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, suite.Total)
}
