package fact

// CitationReport summarizes one citation enforcement pass.
// OK is true when no citation issue carries error severity.
type CitationReport struct {
	Total     int `json:"total"`
	Cited     int `json:"cited"`
	Uncited   int `json:"uncited"`
	Malformed int `json:"malformed"`
	MissingID int `json:"missing_id"`

	// SourceUsage counts claims attributed to each normalized source.
	SourceUsage map[string]int `json:"source_usage,omitempty"`

	OK        bool  `json:"ok"`
	RuntimeMS int64 `json:"runtime_ms"`
}

// LayerSummary is one row of the per-layer verification table.
type LayerSummary struct {
	Layer    string `json:"layer"`
	Checks   int    `json:"checks"`
	Errors   int    `json:"errors"`
	Warnings int    `json:"warnings"`
	Infos    int    `json:"infos"`
}

// VerificationSummary is the tabular outcome of a full verification pass.
// OK is true when no layer produced an error-severity issue.
type VerificationSummary struct {
	OK       bool           `json:"ok"`
	Claims   int            `json:"claims"`
	Matched  int            `json:"matched"`
	Errors   int            `json:"errors"`
	Warnings int            `json:"warnings"`
	Infos    int            `json:"infos"`
	Layers   []LayerSummary `json:"layers"`
}

// canonicalMap renders the report for digest input. Zero counts are kept;
// only the empty usage map collapses, so digests never depend on map
// allocation details.
func (c CitationReport) canonicalMap() map[string]any {
	m := map[string]any{
		"total":      c.Total,
		"cited":      c.Cited,
		"uncited":    c.Uncited,
		"malformed":  c.Malformed,
		"missing_id": c.MissingID,
		"ok":         c.OK,
		"runtime_ms": c.RuntimeMS,
	}
	if len(c.SourceUsage) > 0 {
		usage := make(map[string]any, len(c.SourceUsage))
		for k, v := range c.SourceUsage {
			usage[k] = v
		}
		m["source_usage"] = usage
	}
	return m
}

func (v VerificationSummary) canonicalMap() map[string]any {
	layers := make([]any, len(v.Layers))
	for i, l := range v.Layers {
		layers[i] = map[string]any{
			"layer":    l.Layer,
			"checks":   l.Checks,
			"errors":   l.Errors,
			"warnings": l.Warnings,
			"infos":    l.Infos,
		}
	}
	return map[string]any{
		"ok":       v.OK,
		"claims":   v.Claims,
		"matched":  v.Matched,
		"errors":   v.Errors,
		"warnings": v.Warnings,
		"infos":    v.Infos,
		"layers":   layers,
	}
}
