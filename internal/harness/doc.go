// Package harness runs verification conformance scenarios.
//
// A scenario pairs a narrative and its structured records with the
// outcome the verification pass must produce. Scenarios live in YAML
// so reviewers can read and extend the conformance set without
// touching Go.
//
// # Scenario Format
//
//	name: retention_clean
//	description: "A cited, correctly bound claim passes every layer"
//	narrative: "Per LMIS: The retention rate is 87.5% (QID: lmis_ret_001)."
//	records:
//	  - ref_id: lmis_ret_001
//	    source: LMIS
//	    dataset: lmis_retention_2024q3
//	    unit: percent
//	    fields: [retention_rate]
//	    rows:
//	      - retention_rate: 87.5
//	policy:
//	  allowed_prefixes: [LMIS]
//	expect:
//	  ok: true
//	  claims: 1
//	  matched: 1
//	  kept: ["87.5%"]
//
// # Expectations
//
// The expect block supports:
//
//   - ok: required overall pass/fail
//   - codes / absent_codes: issue codes that must / must not be raised
//   - claims, matched, errors, warnings: summary counts
//   - redacted: substrings that must not survive into the output narrative
//   - kept: substrings that must survive
//
// # Determinism
//
// Scenarios run against a fixed verification instant (overridable via
// the now field), so freshness checks and golden snapshots reproduce
// byte-for-byte across runs. When a scenario sets no allowed_prefixes
// override, the prefixes are derived from the record source labels.
//
// # Golden Snapshots
//
// RunWithGolden reduces the verification result to a stable snapshot
// (summary counts, issue codes, output narrative) and compares it
// against testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
