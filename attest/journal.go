// Package attest produces and parses keyword attestations for generated text.
//
// An attestation binds a keyword summary to the exact prompt and output that
// produced it. The real strategy runs an external zero-knowledge prover and
// yields a journal plus a proof; the mock strategy computes the same journal
// shape in-process with no proof.
package attest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/veritext/veritext/canonical"
)

// Keyword is one extracted keyword with its occurrence count.
type Keyword struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Journal is the public output of an attestation run.
//
// InputHash and OutputHash are fixed-width digests of the attested text;
// for keyword attestation both cover the same input text. ProgramHash
// identifies the program that produced the journal.
type Journal struct {
	ProgramHash      string    `json:"programHash"`
	InputHash        string    `json:"inputHash"`
	OutputHash       string    `json:"outputHash"`
	ModelFingerprint string    `json:"modelFingerprint,omitempty"`
	Keywords         []Keyword `json:"keywords"`
}

// ErrMissingKeywords reports a structurally valid journal without a keywords
// list. Verification treats this differently from an unparsable journal.
var ErrMissingKeywords = errors.New("attest: journal has no keywords")

// ParseJournal decodes journal bytes.
//
// A journal that decodes but carries a null keywords field returns the
// journal together with ErrMissingKeywords so callers can distinguish
// "journal readable, keywords absent" from "journal unreadable".
func ParseJournal(b []byte) (*Journal, error) {
	var raw struct {
		ProgramHash      string     `json:"programHash"`
		InputHash        string     `json:"inputHash"`
		OutputHash       string     `json:"outputHash"`
		ModelFingerprint string     `json:"modelFingerprint"`
		Keywords         *[]Keyword `json:"keywords"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("attest: parse journal: %w", err)
	}

	j := &Journal{
		ProgramHash:      raw.ProgramHash,
		InputHash:        raw.InputHash,
		OutputHash:       raw.OutputHash,
		ModelFingerprint: raw.ModelFingerprint,
	}
	if raw.Keywords == nil {
		return j, ErrMissingKeywords
	}
	j.Keywords = *raw.Keywords
	return j, nil
}

// Marshal encodes the journal as JSON. A nil keywords slice is normalized to
// an empty list so the wire form always carries a keywords array.
func (j *Journal) Marshal() ([]byte, error) {
	out := *j
	if out.Keywords == nil {
		out.Keywords = []Keyword{}
	}
	return json.Marshal(out)
}

// DigestKeywords computes the fixed-width digest binding a keyword list.
// The list order is preserved; nil is digested as an empty list.
func DigestKeywords(kws []Keyword) string {
	if kws == nil {
		kws = []Keyword{}
	}
	return canonical.DigestJSON(kws)
}
