package fact

// Span is a half-open [Start, End) byte range into the narrative text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NumericClaim is one unit-classified number extracted from narrative
// text. Claims are immutable and ephemeral: produced once per extraction
// pass, never persisted directly.
//
// Value holds the number as written ("87.5%" extracts Value=87.5,
// Unit=percent). Unit normalization for comparison happens at binding
// time, never at extraction time.
type NumericClaim struct {
	RawToken string  `json:"raw_token"`
	Value    float64 `json:"value"`
	Unit     Unit    `json:"unit"`
	Span     Span    `json:"span"`
	Sentence string  `json:"sentence"`

	// CitationPrefix is the normalized source label attributed to this
	// claim, empty when no recognized attribution was found nearby.
	CitationPrefix string `json:"citation_prefix,omitempty"`

	// ReferenceID is the structured id cited alongside the claim
	// (e.g. "lmis_ret_001"), empty when absent.
	ReferenceID string `json:"reference_id,omitempty"`

	// SourceFamily is a lowercase grouping label derived from the
	// reference id prefix or the citation prefix, used for source
	// narrowing when no exact id match exists.
	SourceFamily string `json:"source_family,omitempty"`
}
