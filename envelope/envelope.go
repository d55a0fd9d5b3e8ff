// Package envelope wraps a provenance record in a signed typed-data envelope.
//
// The envelope is self-describing: it carries the signing domain and type
// definitions alongside the record, so a verifier can recompute the signing
// digest from the envelope bytes alone.
package envelope

import (
	"encoding/json"

	"github.com/veritext/veritext/record"
)

// UnsignedMarker is the signature value of an envelope published without a
// signature. Publishing one succeeds; verifying one fails, the same as a
// missing signature.
const UnsignedMarker = "unsigned"

// Envelope is the published wire form of a provenance record.
type Envelope struct {
	Domain      Domain         `json:"domain"`
	Types       Types          `json:"types"`
	PrimaryType string         `json:"primaryType"`
	Provenance  *record.Record `json:"provenance"`

	// Signature is 65 signature bytes as 0x-hex, or UnsignedMarker.
	Signature string `json:"signature"`
	// Signer is the claimed signer address. Verifiers check it against the
	// address recovered from Signature.
	Signer string `json:"signer,omitempty"`

	// PromptCID points at stored prompt bytes when the publisher opted in.
	PromptCID string `json:"promptCid,omitempty"`
	// CreatedAt is the publication time in RFC 3339 UTC. It is stamped at
	// the publish step, not at composition, and sits outside the signed
	// struct.
	CreatedAt string `json:"createdAt,omitempty"`
}

// New builds an unsigned envelope around a validated record. The type set is
// pruned to the types the primary type reaches.
func New(domain Domain, rec *record.Record) (*Envelope, error) {
	if rec == nil {
		return nil, newError(KindValidation, "PROV-ENV-001", "envelope requires a provenance record")
	}
	if err := rec.Validate(); err != nil {
		return nil, wrapError(KindValidation, "PROV-ENV-002", "invalid provenance record", err)
	}
	return &Envelope{
		Domain:      domain,
		Types:       PruneTypes(ProvenanceTypes(), PrimaryType),
		PrimaryType: PrimaryType,
		Provenance:  rec,
		Signature:   UnsignedMarker,
	}, nil
}

// Marshal encodes the envelope as JSON. These are the bytes published to the
// CAS; the signed CID addresses them.
func (e *Envelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, wrapError(KindInternal, "PROV-ENV-003", "marshal envelope", err)
	}
	return b, nil
}

// Parse decodes envelope bytes. A missing provenance object is not a parse
// failure; callers detect it via a nil Provenance field.
func Parse(b []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, wrapError(KindParse, "PROV-ENV-004", "parse envelope", err)
	}
	return &e, nil
}

// Digest computes the typed-data signing digest for the envelope's record
// under its own domain and types.
func (e *Envelope) Digest() ([32]byte, error) {
	var zero [32]byte
	if e.Provenance == nil {
		return zero, newError(KindValidation, "PROV-ENV-005", "envelope has no provenance record")
	}
	if e.PrimaryType == "" {
		return zero, newError(KindValidation, "PROV-ENV-006", "envelope has no primary type")
	}
	return TypedDataDigest(e.Domain, e.Types, e.PrimaryType, messageFromRecord(e.Provenance))
}

// Signed reports whether the envelope carries a signature value.
func (e *Envelope) Signed() bool {
	return e.Signature != "" && e.Signature != UnsignedMarker
}

func messageFromRecord(r *record.Record) map[string]any {
	return map[string]any{
		"version":             r.Version,
		"modelId":             r.ModelID,
		"modelHash":           r.ModelHash,
		"promptHash":          r.PromptHash,
		"outputHash":          r.OutputHash,
		"paramsHash":          r.ParamsHash,
		"contentCid":          r.ContentCID,
		"timestamp":           r.Timestamp,
		"attestationStrategy": r.AttestationStrategy,
		"keywordsHash":        r.KeywordsHash,
		"programHash":         r.ProgramHash,
		"journalCid":          r.JournalCID,
		"proofCid":            r.ProofCID,
	}
}
