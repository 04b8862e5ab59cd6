// Package fact provides the foundational types for claim verification and
// audit packs.
//
// This package contains type definitions and the canonical serialization
// they hash under. All other internal packages import fact; fact imports
// nothing internal. This ensures fact remains the foundational layer with
// no circular dependencies.
//
// Key design constraints:
//   - Row values are drawn from a closed scalar enum (string/int/float/bool/null);
//     unknown kinds are rejected at ingestion
//   - Floats render deterministically in canonical JSON; NaN and Inf are rejected
//   - All JSON tags use snake_case
//   - Digest input is always RFC 8785 canonical JSON with domain separation
package fact
