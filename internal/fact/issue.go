package fact

// Severity ranks verification issues. Error severity fails the overall
// verification; warning and info are surfaced but do not block.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// severityRank orders severities for comparison. Unknown values rank
// below info so malformed data can never fail a verification silently.
func severityRank(s Severity) int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank(s) >= severityRank(min)
}

// Verification layers, used as the Layer tag on issues and as row labels
// in the per-layer summary.
const (
	LayerCitation = "citation"
	LayerBinding  = "binding"
	LayerMath     = "math"
	LayerCross    = "cross_source"
	LayerSanity   = "sanity"
	LayerPrivacy  = "privacy"
)

// Issue is one verification finding. Per-claim outcomes are never errors
// in the Go sense: each claim yields exactly one issue or a clean pass.
type Issue struct {
	Layer    string            `json:"layer"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Severity Severity          `json:"severity"`
	Details  map[string]string `json:"details,omitempty"`
}

// CountBySeverity tallies issues per severity level.
func CountBySeverity(issues []Issue) (errors, warnings, infos int) {
	for _, is := range issues {
		switch is.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		case SeverityInfo:
			infos++
		}
	}
	return errors, warnings, infos
}

// HasError reports whether any issue carries error severity.
func HasError(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}
