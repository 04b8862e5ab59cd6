package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/verify"
)

// checkExpectation evaluates every set field of the expectation against
// the verification result, recording one error per failed check. All
// checks run; a scenario failure report is complete, not first-fault.
func checkExpectation(e Expectation, v verify.Result, r *Result) {
	if e.OK != nil && v.OK != *e.OK {
		r.AddError(fmt.Sprintf("ok = %v, want %v (issues: %s)",
			v.OK, *e.OK, codeList(v.Issues)))
	}

	for _, code := range e.Codes {
		if !hasIssueCode(v.Issues, code) {
			r.AddError(fmt.Sprintf("issue code %s not raised (raised: %s)",
				code, codeList(v.Issues)))
		}
	}
	for _, code := range e.AbsentCodes {
		if hasIssueCode(v.Issues, code) {
			r.AddError(fmt.Sprintf("issue code %s raised but expected absent", code))
		}
	}

	if e.Claims != nil && v.Summary.Claims != *e.Claims {
		r.AddError(fmt.Sprintf("claims = %d, want %d", v.Summary.Claims, *e.Claims))
	}
	if e.Matched != nil && v.Summary.Matched != *e.Matched {
		r.AddError(fmt.Sprintf("matched = %d, want %d", v.Summary.Matched, *e.Matched))
	}
	if e.Errors != nil && v.Summary.Errors != *e.Errors {
		r.AddError(fmt.Sprintf("errors = %d, want %d", v.Summary.Errors, *e.Errors))
	}
	if e.Warnings != nil && v.Summary.Warnings != *e.Warnings {
		r.AddError(fmt.Sprintf("warnings = %d, want %d", v.Summary.Warnings, *e.Warnings))
	}

	for _, s := range e.Redacted {
		if strings.Contains(v.RedactedNarrative, s) {
			r.AddError(fmt.Sprintf("output narrative still contains %q", s))
		}
	}
	for _, s := range e.Kept {
		if !strings.Contains(v.RedactedNarrative, s) {
			r.AddError(fmt.Sprintf("output narrative lost %q", s))
		}
	}
}

func hasIssueCode(issues []fact.Issue, code string) bool {
	for _, is := range issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

// codeList renders the raised issue codes for failure messages.
func codeList(issues []fact.Issue) string {
	if len(issues) == 0 {
		return "none"
	}
	codes := make([]string, 0, len(issues))
	for _, is := range issues {
		codes = append(codes, is.Code)
	}
	return strings.Join(codes, ", ")
}
