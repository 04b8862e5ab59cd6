package guard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
)

func defaultRedactor() *Redactor {
	return NewRedactor(policy.Default().Privacy, nil)
}

func TestRedactEmail(t *testing.T) {
	r := defaultRedactor()

	out, issues := r.Redact("Contact jane.doe@example.com for details.", "")
	assert.Equal(t, "Contact [redacted-email] for details.", out)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeEmailRedacted, issues[0].Code)
	assert.Equal(t, fact.SeverityWarning, issues[0].Severity)
	assert.Equal(t, fact.LayerPrivacy, issues[0].Layer)
	assert.Equal(t, "redacted an email address at offset 8", issues[0].Message)
	assert.Equal(t, "8", issues[0].Details["offset"])
}

func TestRedactEmailKeepsSentencePeriod(t *testing.T) {
	r := defaultRedactor()

	out, issues := r.Redact("Reach j.r@corp.co.uk.", "")
	assert.Equal(t, "Reach [redacted-email].", out)
	assert.Len(t, issues, 1)
}

func TestRedactLongNumericID(t *testing.T) {
	r := defaultRedactor()

	out, issues := r.Redact("Employee id 987654321 left.", "")
	assert.Equal(t, "Employee id [redacted-id] left.", out)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeIDRedacted, issues[0].Code)
	assert.Equal(t, "12", issues[0].Details["offset"])

	out, issues = r.Redact("Employee id 12345678 stayed.", "")
	assert.Equal(t, "Employee id 12345678 stayed.", out)
	assert.Empty(t, issues)
}

func TestRedactHyphenatedID(t *testing.T) {
	r := defaultRedactor()

	out, issues := r.Redact("NI 123-45-6789 on file.", "")
	assert.Equal(t, "NI [redacted-id] on file.", out)
	assert.Len(t, issues, 1)

	out, issues = r.Redact("Covers the 2023-2024 period.", "")
	assert.Equal(t, "Covers the 2023-2024 period.", out)
	assert.Empty(t, issues)
}

func TestRedactGroupedThousandsKept(t *testing.T) {
	r := defaultRedactor()

	out, issues := r.Redact("Budget was 1,234,567,890 pounds.", "")
	assert.Equal(t, "Budget was 1,234,567,890 pounds.", out)
	assert.Empty(t, issues)
}

func TestRedactName(t *testing.T) {
	r := defaultRedactor()

	out, issues := r.Redact("We interviewed Sarah Connor yesterday.", "")
	assert.Equal(t, "We interviewed [redacted-name] yesterday.", out)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeNameRedacted, issues[0].Code)
	assert.Equal(t, "redacted a personal name at offset 15", issues[0].Message)
}

func TestRedactHonorificSingleName(t *testing.T) {
	r := defaultRedactor()

	out, issues := r.Redact("Approval came from Dr Smith today.", "")
	assert.Equal(t, "Approval came from [redacted-name] today.", out)
	assert.Len(t, issues, 1)
}

func TestRedactHonorificWithPeriod(t *testing.T) {
	r := defaultRedactor()

	out, issues := r.Redact("Sign-off by Mr. Ethan Hunt arrived.", "")
	assert.Equal(t, "Sign-off by [redacted-name] arrived.", out)
	assert.Len(t, issues, 1)
}

func TestRedactConnectorName(t *testing.T) {
	r := defaultRedactor()

	out, issues := r.Redact("The committee thanked Ludwig van Beethoven formally.", "")
	assert.Equal(t, "The committee thanked [redacted-name] formally.", out)
	assert.Len(t, issues, 1)
}

func TestRedactApostropheName(t *testing.T) {
	r := defaultRedactor()

	out, _ := r.Redact("Payment went to Conor O'Brien directly.", "")
	assert.Equal(t, "Payment went to [redacted-name] directly.", out)
}

func TestRedactAcronymKept(t *testing.T) {
	r := defaultRedactor()

	out, issues := r.Redact("LMIS reported strong growth.", "")
	assert.Equal(t, "LMIS reported strong growth.", out)
	assert.Empty(t, issues)
}

func TestRedactKeepPhraseProtected(t *testing.T) {
	rules := policy.Default().Privacy
	text := "Churn points come from Labour Market Survey records."

	bare := NewRedactor(rules, nil)
	out, _ := bare.Redact(text, "")
	assert.Contains(t, out, maskName)

	protectedR := NewRedactor(rules, []string{"Labour Market Survey"})
	out, issues := protectedR.Redact(text, "")
	assert.Equal(t, text, out)
	assert.Empty(t, issues)
}

func TestRedactSentenceBoundaryBreaksName(t *testing.T) {
	r := defaultRedactor()

	out, issues := r.Redact("Reviews praised Alice Smith. Bob Jones disagreed strongly.", "")
	assert.Equal(t, "Reviews praised [redacted-name]. [redacted-name] disagreed strongly.", out)
	assert.Equal(t, 2, strings.Count(out, maskName))
	assert.Len(t, issues, 2)
}

func TestRedactAllowListedRole(t *testing.T) {
	r := defaultRedactor()

	text := "Contact jane.doe@example.com about Sarah Connor, id 987654321."
	out, issues := r.Redact(text, "auditor")
	assert.Equal(t, text, out)
	assert.Empty(t, issues)
}

func TestRedactDisabledRules(t *testing.T) {
	rules := policy.Default().Privacy
	rules.RedactEmails = false
	rules.RedactNames = false
	rules.MinIDDigits = 0
	r := NewRedactor(rules, nil)

	text := "Mail a@b.co id 999999999 for Sarah Connor."
	out, issues := r.Redact(text, "")
	assert.Equal(t, text, out)
	assert.Empty(t, issues)
}

func TestRedactEmailWinsOverID(t *testing.T) {
	r := defaultRedactor()

	out, issues := r.Redact("Verify user123456789@corp.example.com today.", "")
	assert.Equal(t, "Verify [redacted-email] today.", out)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeEmailRedacted, issues[0].Code)
}

func TestRedactOffsetsIndexOriginalText(t *testing.T) {
	r := defaultRedactor()

	_, issues := r.Redact("Email a@b.co now, id 999999999.", "")
	require.Len(t, issues, 2)
	assert.Equal(t, CodeEmailRedacted, issues[0].Code)
	assert.Equal(t, "6", issues[0].Details["offset"])
	assert.Equal(t, CodeIDRedacted, issues[1].Code)
	assert.Equal(t, "21", issues[1].Details["offset"])
}

func TestGroupSizeBelowFloor(t *testing.T) {
	r := defaultRedactor()

	records := []fact.StructuredRecord{
		guardRecord("lmis_seg_001", fact.UnitCount,
			guardRow("segment", fact.String("security"), "group_size", fact.Int(3))),
	}

	issues := r.CheckGroupSizes(records)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeKAnonymity, issues[0].Code)
	assert.Equal(t, fact.SeverityError, issues[0].Severity)
	assert.Equal(t, "lmis_seg_001 rows[0].group_size is 3, below the k-anonymity floor 5", issues[0].Message)
	assert.Equal(t, "rows[0].group_size", issues[0].Details["location"])
}

func TestGroupSizeBoundaries(t *testing.T) {
	r := defaultRedactor()

	records := []fact.StructuredRecord{
		guardRecord("lmis_seg_001", fact.UnitCount,
			guardRow("group_size", fact.Int(5)),
			guardRow("group_size", fact.Int(0)),
			guardRow("employee_count", fact.Int(4))),
	}

	issues := r.CheckGroupSizes(records)
	require.Len(t, issues, 1)
	assert.Equal(t, "rows[2].employee_count", issues[0].Details["location"])
}
