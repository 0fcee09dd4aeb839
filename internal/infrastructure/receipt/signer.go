package receipt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/promptdial/promptdial/internal/domain"
)

// Signer holds the process-scoped Ed25519 keypair used to issue receipts.
// The keypair is generated at startup and read-only afterwards; external
// verifiers discover the public key through PublicKey.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	now  func() time.Time
}

// NewSigner generates a fresh process-scoped keypair.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing keypair: %w", err)
	}
	return &Signer{priv: priv, pub: pub, now: time.Now}, nil
}

// PublicKey returns the verification key for this process.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.pub
}

// HashPrefix computes the 8-lower-hex-character prefix of the SHA-256 over
// the deterministic serialization of a technique sequence. The same input
// always yields a byte-identical prefix.
func HashPrefix(techniques []domain.Technique) string {
	names := make([]string, len(techniques))
	for i, t := range techniques {
		names[i] = t.String()
	}
	// json.Marshal of a string slice is deterministic: order preserved,
	// UTF-8, no whitespace.
	data, _ := json.Marshal(names)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:8]
}

// canonicalMessage builds the deterministic byte string the signature
// covers: sorted keys, no whitespace, UTF-8. The trace ID is folded in so a
// receipt verifies only against its own trace.
func canonicalMessage(r *domain.Receipt, traceID string) []byte {
	// Field names in sorted order; hand-rolled to keep the byte layout
	// independent of struct tags.
	fields := []struct {
		key   string
		value string
	}{
		{"builder_hash", r.BuilderHash},
		{"flow_version", r.FlowVersion},
		{"planner_hash", r.PlannerHash},
		{"runner_model", r.RunnerModel},
		{"timestamp", r.Timestamp},
		{"trace_id", traceID},
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, '{')
	for i, f := range fields {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, _ := json.Marshal(f.key)
		val, _ := json.Marshal(f.value)
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf
}

// Issue builds and signs a receipt for the given pipeline decisions.
// The timestamp is RFC 3339 UTC with milliseconds omitted to keep the
// canonical form stable across implementations.
func (s *Signer) Issue(traceID string, suggested, used []domain.Technique, runnerModel string) *domain.Receipt {
	r := &domain.Receipt{
		FlowVersion: domain.FlowVersion,
		PlannerHash: HashPrefix(suggested),
		BuilderHash: HashPrefix(used),
		RunnerModel: runnerModel,
		Timestamp:   s.now().UTC().Truncate(time.Second).Format(time.RFC3339),
	}
	sig := ed25519.Sign(s.priv, canonicalMessage(r, traceID))
	r.Signature = base64.StdEncoding.EncodeToString(sig)
	return r
}

// Verify recomputes the canonical message for (receipt, traceID) and checks
// the Ed25519 signature against the given public key. Any altered field
// fails verification.
func Verify(r *domain.Receipt, traceID string, pub ed25519.PublicKey) bool {
	if r == nil || r.Signature == "" {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(r.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, canonicalMessage(r, traceID), sig)
}
