package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicyFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSchemaDefaultsMatchDefault(t *testing.T) {
	fromSchema, err := DefaultFromSchema()
	require.NoError(t, err)

	want := Default()

	// Spot-check each rule group; the maps-with-no-entries cases are
	// compared field by field because CUE decodes them as nil.
	assert.Equal(t, want.Citation.BulletWindow, fromSchema.Citation.BulletWindow)
	assert.Equal(t, want.Citation.MissingIDSeverity, fromSchema.Citation.MissingIDSeverity)
	assert.Equal(t, want.Citation.RequireReferenceID, fromSchema.Citation.RequireReferenceID)

	assert.Equal(t, want.Tolerance.AbsEpsilon, fromSchema.Tolerance.AbsEpsilon)
	assert.Equal(t, want.Tolerance.RelEpsilon, fromSchema.Tolerance.RelEpsilon)
	assert.Equal(t, want.Tolerance.SegmentFields, fromSchema.Tolerance.SegmentFields)
	assert.Equal(t, want.Tolerance.MinDerivedComponents, fromSchema.Tolerance.MinDerivedComponents)
	assert.Equal(t, want.Tolerance.AmbiguousSeverity, fromSchema.Tolerance.AmbiguousSeverity)
	assert.Equal(t, want.Tolerance.RoundingSeverity, fromSchema.Tolerance.RoundingSeverity)

	assert.Equal(t, want.Extract.YearMin, fromSchema.Extract.YearMin)
	assert.Equal(t, want.Extract.YearMax, fromSchema.Extract.YearMax)
	assert.Equal(t, want.Extract.CurrencyMarkers, fromSchema.Extract.CurrencyMarkers)
	assert.Equal(t, want.Extract.PercentMarkers, fromSchema.Extract.PercentMarkers)
	assert.Equal(t, want.Extract.MinRefIDLength, fromSchema.Extract.MinRefIDLength)
	assert.Equal(t, want.Extract.ContextWindow, fromSchema.Extract.ContextWindow)

	assert.Equal(t, want.Math, fromSchema.Math)

	assert.Equal(t, want.Sanity.DisallowNegative, fromSchema.Sanity.DisallowNegative)
	assert.Equal(t, want.Sanity.MaxAgeDays, fromSchema.Sanity.MaxAgeDays)

	assert.Equal(t, want.Privacy.Honorifics, fromSchema.Privacy.Honorifics)
	assert.Equal(t, want.Privacy.NameConnectors, fromSchema.Privacy.NameConnectors)
	assert.Equal(t, want.Privacy.AllowedRoles, fromSchema.Privacy.AllowedRoles)
	assert.Equal(t, want.Privacy.KAnonymityMin, fromSchema.Privacy.KAnonymityMin)
	assert.Equal(t, want.Privacy.MinIDDigits, fromSchema.Privacy.MinIDDigits)

	assert.Equal(t, want.Cross.SegmentKeys, fromSchema.Cross.SegmentKeys)
	assert.Equal(t, want.Cross.MaxPercentDelta, fromSchema.Cross.MaxPercentDelta)

	assert.Equal(t, want.Retention, fromSchema.Retention)
}

func TestLoadFileWithOverrides(t *testing.T) {
	path := writePolicyFile(t, "policy.cue", `
citation: {
	allowed_prefixes: ["LMIS", "HMRC"]
	synonyms: {"Labour Market Survey": "LMIS"}
	require_reference_id: true
}
tolerance: rel_epsilon: 0.01
`)

	pol, errs := Load(path)
	require.Empty(t, errs)

	assert.Equal(t, []string{"LMIS", "HMRC"}, pol.Citation.AllowedPrefixes)
	assert.True(t, pol.Citation.RequireReferenceID)
	assert.Equal(t, "LMIS", pol.Citation.Synonyms["Labour Market Survey"])
	assert.Equal(t, 0.01, pol.Tolerance.RelEpsilon)

	// Untouched fields keep schema defaults.
	assert.Equal(t, 160, pol.Extract.ContextWindow)
	assert.Equal(t, 5, pol.Privacy.KAnonymityMin)
	assert.Equal(t, 0.5, pol.Tolerance.AbsEpsilon["count"])
	assert.Equal(t, "error", pol.Citation.MissingIDSeverity)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	content := `package policy

extract: min_value: 10
math: percent_sum_tolerance: 2.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy.cue"), []byte(content), 0644))

	pol, errs := Load(dir)
	require.Empty(t, errs)
	assert.Equal(t, 10.0, pol.Extract.MinValue)
	assert.Equal(t, 2.0, pol.Math.PercentSumTolerance)
	assert.Equal(t, 1900, pol.Extract.YearMin, "defaults still applied")
}

func TestLoadUnknownFieldRejected(t *testing.T) {
	path := writePolicyFile(t, "typo.cue", `
citaton: allowed_prefixes: ["LMIS"]
`)

	_, errs := Load(path)
	require.NotEmpty(t, errs, "misspelled section must not be silently ignored")

	var loadErr *LoadError
	require.True(t, errors.As(errs[0], &loadErr))
	assert.Equal(t, ErrCodeSchema, loadErr.Code)
}

func TestLoadConstraintViolation(t *testing.T) {
	path := writePolicyFile(t, "bad.cue", `
extract: context_window: 10
`)

	_, errs := Load(path)
	require.NotEmpty(t, errs)

	var loadErr *LoadError
	require.True(t, errors.As(errs[0], &loadErr))
	assert.Equal(t, ErrCodeSchema, loadErr.Code)
}

func TestLoadBadSeverityValue(t *testing.T) {
	path := writePolicyFile(t, "sev.cue", `
citation: missing_id_severity: "fatal"
`)

	_, errs := Load(path)
	require.NotEmpty(t, errs)
}

func TestLoadSemanticErrorAfterDecode(t *testing.T) {
	// Passes every schema constraint but trips the cross-field check.
	path := writePolicyFile(t, "syn.cue", `
citation: synonyms: {"Tax Records": "HMRC"}
`)

	_, errs := Load(path)
	require.NotEmpty(t, errs)

	var verr *ValidationError
	require.True(t, errors.As(errs[0], &verr))
	assert.Equal(t, ErrCodeSynonymTarget, verr.Code)
}

func TestLoadNotFound(t *testing.T) {
	_, errs := Load(filepath.Join(t.TempDir(), "missing.cue"))
	require.Len(t, errs, 1)

	var loadErr *LoadError
	require.True(t, errors.As(errs[0], &loadErr))
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}

func TestLoadErrorStringIncludesPosition(t *testing.T) {
	e := &LoadError{Code: ErrCodeLoadFailed, Message: "boom"}
	assert.Equal(t, "E004: boom", e.Error(), "invalid position omitted from message")
}
