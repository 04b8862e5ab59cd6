package binder

import (
	"fmt"
	"strings"

	"github.com/roach88/receipts/internal/extract"
	"github.com/roach88/receipts/internal/fact"
)

// candidate is one comparable source value: a numeric cell, or the row
// count of a record for count claims.
type candidate struct {
	rec      *fact.StructuredRecord
	sourceID string
	location string
	rowIdx   int
	field    string
	rowCount bool
	value    float64 // as stored
}

// scope narrows the records a claim may bind against, in resolution
// order: exact reference id, then source family, then every record.
// idExact reports that the claim's reference id named at least one
// record, which later suppresses ambiguity.
func (b *Binder) scope(claim fact.NumericClaim, records []fact.StructuredRecord) (scoped []*fact.StructuredRecord, idExact bool) {
	if claim.ReferenceID != "" {
		var byID []*fact.StructuredRecord
		for i := range records {
			if strings.EqualFold(records[i].RefID, claim.ReferenceID) {
				byID = append(byID, &records[i])
			}
		}
		if len(byID) > 0 {
			idExact = true
			if b.rules.PreferExplicitID {
				return byID, true
			}
		}
	}

	if claim.SourceFamily != "" {
		family := strings.ToLower(claim.SourceFamily)
		var byFamily []*fact.StructuredRecord
		for i := range records {
			if recordInFamily(&records[i], family) {
				byFamily = append(byFamily, &records[i])
			}
		}
		if len(byFamily) > 0 {
			return byFamily, idExact
		}
	}

	all := make([]*fact.StructuredRecord, len(records))
	for i := range records {
		all[i] = &records[i]
	}
	return all, idExact
}

func recordInFamily(rec *fact.StructuredRecord, family string) bool {
	return strings.Contains(strings.ToLower(rec.RefID), family) ||
		strings.Contains(strings.ToLower(rec.Provenance.DatasetID), family) ||
		strings.Contains(strings.ToLower(rec.Provenance.Source), family)
}

// candidates enumerates every comparable value in scope. When a row's
// segment value appears in the claim's sentence, comparison is
// restricted to the matching rows, and the row-count target counts only
// those rows.
func (b *Binder) candidates(claim fact.NumericClaim, scope []*fact.StructuredRecord) []candidate {
	var out []candidate
	for _, rec := range scope {
		rows := b.segmentRows(claim.Sentence, rec.Rows)
		for _, ri := range rows {
			rec.Rows[ri].Fields(func(key string, v fact.Scalar) bool {
				if num, ok := fact.Numeric(v); ok {
					out = append(out, candidate{
						rec:      rec,
						sourceID: rec.Identity(),
						location: fmt.Sprintf("rows[%d].%s", ri, key),
						rowIdx:   ri,
						field:    key,
						value:    num,
					})
				}
				return true
			})
		}
		if claim.Unit == fact.UnitCount {
			out = append(out, candidate{
				rec:      rec,
				sourceID: rec.Identity(),
				location: "row_count",
				rowCount: true,
				value:    float64(len(rows)),
			})
		}
	}
	return out
}

// segmentRows returns the row indices to compare: rows whose segment
// field value (case-folded, at least 3 chars) appears as a whole word
// in the sentence, or every row when none does.
func (b *Binder) segmentRows(sentence string, rows []fact.Row) []int {
	var matched []int
	if sentence != "" {
		for i := range rows {
			if b.rowMatchesSegment(sentence, rows[i]) {
				matched = append(matched, i)
			}
		}
	}
	if len(matched) > 0 {
		return matched
	}
	all := make([]int, len(rows))
	for i := range all {
		all[i] = i
	}
	return all
}

func (b *Binder) rowMatchesSegment(sentence string, row fact.Row) bool {
	for _, field := range b.rules.SegmentFields {
		v, ok := row.Get(field)
		if !ok {
			continue
		}
		s, ok := v.(fact.String)
		if !ok {
			continue
		}
		val := strings.TrimSpace(string(s))
		if len(val) < 3 {
			continue
		}
		if extract.ContainsWord(sentence, val) {
			return true
		}
	}
	return false
}
