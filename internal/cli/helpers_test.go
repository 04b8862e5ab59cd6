package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/receipts/internal/fact"
)

// auditNow pins the verification instant so freshness outcomes do not
// depend on when the suite runs.
const auditNow = "2025-03-01T12:00:00Z"

const cleanNarrative = "Per LMIS: The retention rate is 87.5% (QID: lmis_ret_001)."

const uncitedNarrative = "Churn hit 45% in the second quarter."

const cleanRecords = `records:
  - ref_id: lmis_ret_001
    source: LMIS
    dataset: lmis_retention_2024q3
    unit: percent
    as_of: "2024-09-30"
    rows:
      - retention_rate: 87.5
`

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execAudit commits one audit pack through the audit command and
// returns the audit id and the command error. Failed verifications
// still commit; callers assert on the error themselves.
func execAudit(t *testing.T, storeDir, narrativeText string, extra ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()

	args := []string{
		"--now", auditNow,
		"--narrative", writeFixture(t, dir, "report.md", narrativeText),
		"--records", writeFixture(t, dir, "records.yaml", cleanRecords),
	}
	args = append(args, extra...)

	buf := &bytes.Buffer{}
	cmd := NewAuditCommand(&RootOptions{Format: "json", StoreRoot: storeDir})
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "audit response carries no data")
	id, _ := data["audit_id"].(string)
	require.NotEmpty(t, id)
	return id, err
}

// handWritePack plants a minimal pack directly on disk, for prune and
// reindex flows that need packs with chosen creation times.
func handWritePack(t *testing.T, storeDir, auditID, createdAt string) {
	t.Helper()
	m := fact.Manifest{
		AuditID:         auditID,
		CreatedAt:       createdAt,
		RequestID:       "req-" + auditID,
		CodeVersion:     fact.EngineVersion,
		RegistryVersion: "registry-test",
		Sources:         []string{"LMIS"},
		ReferenceIDs:    []string{"lmis_ret_001"},
		Citation:        fact.CitationReport{Total: 1, Cited: 1, OK: true},
		Verification:    fact.VerificationSummary{OK: true, Claims: 1, Matched: 1},
	}

	dir := filepath.Join(storeDir, auditID)
	require.NoError(t, os.MkdirAll(dir, 0755))
	data, err := json.MarshalIndent(m, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0644))
}

// decodeResponse parses a JSON envelope and returns the data object.
func decodeResponse(t *testing.T, buf *bytes.Buffer) (CLIResponse, map[string]any) {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	data, _ := resp.Data.(map[string]any)
	return resp, data
}
