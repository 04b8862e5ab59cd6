package fact

// BindReason explains why a claim failed to bind, or that it did not fail.
type BindReason string

const (
	// BindOK means the claim matched exactly one source within tolerance.
	BindOK BindReason = "ok"

	// BindNoCandidates means no record held any comparable numeric value.
	BindNoCandidates BindReason = "no_candidates"

	// BindNotFound means no value matched and the closest candidate sits
	// outside the rounding window.
	BindNotFound BindReason = "claim_not_found"

	// BindRoundingMismatch means the closest candidate missed tolerance
	// but sits within twice the epsilon, suggesting a rounding slip.
	BindRoundingMismatch BindReason = "rounding_mismatch"

	// BindAmbiguous means the value matched records in more than one
	// distinct source and no explicit reference id disambiguates.
	// A winner is never guessed.
	BindAmbiguous BindReason = "ambiguous_source"
)

// NearestMiss records the closest non-matching candidate for diagnostics.
type NearestMiss struct {
	SourceID string  `json:"source_id"`
	Location string  `json:"location"`
	Value    float64 `json:"value"`
	Diff     float64 `json:"diff"`
}

// ClaimBinding is the outcome of matching one claim against the candidate
// records. One binding exists per claim per verification run.
//
// Matched is true only when exactly one source qualifies, or an explicit
// reference id disambiguates.
type ClaimBinding struct {
	Claim   NumericClaim `json:"claim"`
	Matched bool         `json:"matched"`
	Reason  BindReason   `json:"reason"`

	// SourceID and Location identify the winning value when Matched.
	SourceID string `json:"source_id,omitempty"`
	Location string `json:"location,omitempty"`

	// CandidateIDs lists every distinct source considered, sorted.
	CandidateIDs []string `json:"candidate_ids,omitempty"`
	Ambiguous    bool     `json:"ambiguous,omitempty"`

	Nearest *NearestMiss `json:"nearest_miss,omitempty"`

	// Derived recomputation outcome, populated only when the winning
	// record is flagged derived and the bound field is share-like.
	DerivedChecked    bool    `json:"derived_checked,omitempty"`
	DerivedConsistent bool    `json:"derived_consistent,omitempty"`
	RecomputedValue   float64 `json:"recomputed_value,omitempty"`

	// Hint is a remediation suggestion ("replace X with Y, source Z")
	// when a correction is computable.
	Hint string `json:"hint,omitempty"`
}
