package fact

import "fmt"

// Unit classifies a numeric value for tolerance semantics.
type Unit string

const (
	UnitCount    Unit = "count"
	UnitPercent  Unit = "percent"
	UnitCurrency Unit = "currency"
)

// ParseUnit validates a unit string.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case UnitCount, UnitPercent, UnitCurrency:
		return Unit(s), nil
	default:
		return "", fmt.Errorf("unknown unit %q (want count, percent, or currency)", s)
	}
}

// Provenance identifies where a record's data came from.
type Provenance struct {
	Source    string   `json:"source"`               // source system label, e.g. "LMIS"
	DatasetID string   `json:"dataset_id"`           // registry dataset identifier
	Locator   string   `json:"locator,omitempty"`    // path/URI inside the source
	Fields    []string `json:"field_list,omitempty"` // declared column names
}

// Freshness records how current a record's data is.
// AsOf is the reporting date ("2006-01-02" or RFC 3339); UpdatedAt is the
// optional last-refresh timestamp.
type Freshness struct {
	AsOf      string `json:"as_of"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// StructuredRecord is a read-only data extract supplied by the data layer
// for one verification request: ordered rows under a declared unit, with
// provenance, freshness, and an optional structured reference id that
// narrative citations may point at.
//
// Derived marks records computed by an upstream aggregation; their
// share-like fields are eligible for consistency recomputation.
type StructuredRecord struct {
	RefID      string     `json:"ref_id,omitempty"`
	Unit       Unit       `json:"unit"`
	Rows       []Row      `json:"rows"`
	Provenance Provenance `json:"provenance"`
	Freshness  Freshness  `json:"freshness"`
	Derived    bool       `json:"derived,omitempty"`
}

// Identity returns the most specific stable identifier for the record:
// reference id, else dataset id, else source label. Used for candidate
// lists and ambiguity reporting.
func (r StructuredRecord) Identity() string {
	if r.RefID != "" {
		return r.RefID
	}
	if r.Provenance.DatasetID != "" {
		return r.Provenance.DatasetID
	}
	return r.Provenance.Source
}
