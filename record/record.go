// Package record defines the provenance record and its construction.
package record

import (
	"fmt"
	"strings"

	"github.com/veritext/veritext/canonical"
)

// Version is the current record schema version.
const Version = 1

// Record binds a generated output to its model, prompt, parameters, stored
// content, and optional attestation. Hash fields are fixed-width digests;
// absent values carry canonical.ZeroDigest, except modelHash, which may also
// be empty when the model's config is proprietary. CID fields are empty when
// no artifact was stored.
type Record struct {
	Version   int    `json:"version"`
	ModelID   string `json:"modelId"`
	ModelHash string `json:"modelHash"`

	PromptHash string `json:"promptHash"`
	OutputHash string `json:"outputHash"`
	ParamsHash string `json:"paramsHash"`

	ContentCID string `json:"contentCid"`

	// Timestamp is creation time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	AttestationStrategy string `json:"attestationStrategy"`
	KeywordsHash        string `json:"keywordsHash"`
	ProgramHash         string `json:"programHash"`
	JournalCID          string `json:"journalCid"`
	ProofCID            string `json:"proofCid"`
}

// Validate checks the structural invariants of a record.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("record: nil record")
	}
	if r.Version != Version {
		return fmt.Errorf("record: unsupported version %d", r.Version)
	}
	if r.ModelID == "" {
		return fmt.Errorf("record: missing modelId")
	}
	// Proprietary models publish no config; an absent modelHash means the
	// same thing as the zero sentinel and is accepted as-is rather than
	// rewritten, so already-signed bytes stay stable.
	if r.ModelHash != "" {
		if err := checkDigest("modelHash", r.ModelHash); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		name, val string
	}{
		{"promptHash", r.PromptHash},
		{"outputHash", r.OutputHash},
		{"paramsHash", r.ParamsHash},
		{"keywordsHash", r.KeywordsHash},
		{"programHash", r.ProgramHash},
	} {
		if err := checkDigest(f.name, f.val); err != nil {
			return err
		}
	}
	if r.ContentCID == "" {
		return fmt.Errorf("record: missing contentCid")
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("record: missing timestamp")
	}
	if r.AttestationStrategy == "" {
		return fmt.Errorf("record: missing attestationStrategy")
	}
	return nil
}

func checkDigest(name, v string) error {
	if len(v) != 2+canonical.DigestHexLen || !strings.HasPrefix(v, "0x") {
		return fmt.Errorf("record: %s is not a fixed-width digest: %q", name, v)
	}
	return nil
}
