package receipt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdial/promptdial/internal/domain"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner()
	require.NoError(t, err)
	return s
}

func TestHashPrefix_Idempotent(t *testing.T) {
	techniques := []domain.Technique{
		domain.TechniqueChainOfThought,
		domain.TechniqueSelfConsistency,
	}

	first := HashPrefix(techniques)
	second := HashPrefix(techniques)

	assert.Equal(t, first, second)
	assert.Len(t, first, 8)
	assert.Regexp(t, "^[0-9a-f]{8}$", first)
}

func TestHashPrefix_OrderSensitive(t *testing.T) {
	a := HashPrefix([]domain.Technique{domain.TechniqueChainOfThought, domain.TechniqueReAct})
	b := HashPrefix([]domain.Technique{domain.TechniqueReAct, domain.TechniqueChainOfThought})

	assert.NotEqual(t, a, b)
}

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	signer := newTestSigner(t)

	r := signer.Issue("trace-123",
		[]domain.Technique{domain.TechniqueChainOfThought},
		[]domain.Technique{domain.TechniqueChainOfThought, domain.TechniqueFewShotCoT},
		"gpt-4o")

	assert.Equal(t, domain.FlowVersion, r.FlowVersion)
	assert.NotEmpty(t, r.Signature)
	assert.True(t, Verify(r, "trace-123", signer.PublicKey()))
}

func TestVerify_WrongTrace(t *testing.T) {
	signer := newTestSigner(t)

	r := signer.Issue("trace-123",
		[]domain.Technique{domain.TechniqueChainOfThought},
		[]domain.Technique{domain.TechniqueChainOfThought},
		"gpt-4o")

	assert.False(t, Verify(r, "trace-456", signer.PublicKey()))
}

func TestVerify_TamperedFields(t *testing.T) {
	signer := newTestSigner(t)

	base := func() *domain.Receipt {
		return signer.Issue("trace-123",
			[]domain.Technique{domain.TechniqueChainOfThought},
			[]domain.Technique{domain.TechniqueChainOfThought},
			"gpt-4o")
	}

	tests := []struct {
		name   string
		mutate func(r *domain.Receipt)
	}{
		{"flow_version", func(r *domain.Receipt) { r.FlowVersion = "2.0.0" }},
		{"planner_hash", func(r *domain.Receipt) { r.PlannerHash = "deadbeef" }},
		{"builder_hash", func(r *domain.Receipt) { r.BuilderHash = "deadbeef" }},
		{"runner_model", func(r *domain.Receipt) { r.RunnerModel = "other-model" }},
		{"timestamp", func(r *domain.Receipt) { r.Timestamp = "2020-01-01T00:00:00Z" }},
		{"signature", func(r *domain.Receipt) { r.Signature = "bm90LWEtc2ln" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			require.True(t, Verify(r, "trace-123", signer.PublicKey()))
			tt.mutate(r)
			assert.False(t, Verify(r, "trace-123", signer.PublicKey()))
		})
	}
}

func TestVerify_NilAndEmpty(t *testing.T) {
	signer := newTestSigner(t)

	assert.False(t, Verify(nil, "trace-123", signer.PublicKey()))
	assert.False(t, Verify(&domain.Receipt{}, "trace-123", signer.PublicKey()))
}

func TestIssue_TimestampFormat(t *testing.T) {
	signer := newTestSigner(t)
	signer.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 30, 45, 987654321, time.UTC)
	}

	r := signer.Issue("trace-123",
		[]domain.Technique{domain.TechniqueChainOfThought},
		[]domain.Technique{domain.TechniqueChainOfThought},
		"gpt-4o")

	// Milliseconds are dropped from the canonical timestamp.
	assert.Equal(t, "2025-06-15T12:30:45Z", r.Timestamp)
	assert.True(t, Verify(r, "trace-123", signer.PublicKey()))
}
