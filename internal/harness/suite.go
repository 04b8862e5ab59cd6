package harness

import (
	"fmt"
	"path/filepath"
)

// SuiteResult aggregates a directory of scenarios.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure records one scenario that failed to load or to pass.
type SuiteFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// RunDir loads and runs every *.yaml scenario under dir, in path
// order. A scenario that fails to load counts as failed; the suite
// keeps going so one broken file does not hide the rest.
func RunDir(dir string) (*SuiteResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan scenario dir: %w", err)
	}

	suite := &SuiteResult{}
	for _, path := range paths {
		suite.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			suite.Failed++
			suite.Failures = append(suite.Failures, SuiteFailure{
				Scenario: filepath.Base(path),
				Path:     path,
				Errors:   []string{err.Error()},
			})
			continue
		}

		result, err := Run(scenario)
		if err != nil {
			suite.Failed++
			suite.Failures = append(suite.Failures, SuiteFailure{
				Scenario: scenario.Name,
				Path:     path,
				Errors:   []string{err.Error()},
			})
			continue
		}
		if !result.Pass {
			suite.Failed++
			suite.Failures = append(suite.Failures, SuiteFailure{
				Scenario: scenario.Name,
				Path:     path,
				Errors:   result.Errors,
			})
			continue
		}
		suite.Passed++
	}
	return suite, nil
}
