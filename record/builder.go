package record

import (
	"fmt"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/veritext/veritext/attest"
	"github.com/veritext/veritext/canonical"
	"github.com/veritext/veritext/storage"
)

// Warning codes emitted by Build. Warnings never fail a build.
const (
	WarnPromptUnstored       = "prompt_unstored"
	WarnAttestationUnstored  = "attestation_artifacts_unstored"
	WarnModelConfigUnknown   = "model_config_unknown"
	WarnAttestationProofless = "attestation_proofless"
)

// Input carries everything a record is built from.
type Input struct {
	Prompt  string
	Output  string
	ModelID string
	// ModelConfig is the public model configuration text. Empty means
	// proprietary; the record's modelHash becomes the zero digest.
	ModelConfig string
	// Params are the generation parameters. Missing temperature and top_p
	// are canonicalized to their defaults before hashing.
	Params map[string]any
	// StorePrompt controls whether the prompt bytes are stored alongside
	// the content. The prompt hash is always bound either way.
	StorePrompt bool
	// Attestation is optional. Its strategy, hashes, and artifact CIDs are
	// bound into the record when present.
	Attestation *attest.Result
}

// Artifacts reports what Build stored and any degradations it accepted.
type Artifacts struct {
	ContentCID cid.Cid
	PromptCID  cid.Cid
	JournalCID cid.Cid
	ProofCID   cid.Cid
	Warnings   []string
}

// Builder constructs records against a CAS.
type Builder struct {
	CAS storage.CAS
	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

// Build hashes the inputs, stores the content (and best-effort the prompt and
// attestation artifacts), and returns the resulting record.
//
// A content store failure is a hard error: a record must always reference
// retrievable content. Prompt and attestation artifact store failures degrade
// to warnings; attestation hashes stay bound even when its CIDs are dropped.
func (b *Builder) Build(in Input) (*Record, *Artifacts, error) {
	if b == nil || b.CAS == nil {
		return nil, nil, fmt.Errorf("record: builder has no CAS")
	}
	if in.Output == "" {
		return nil, nil, fmt.Errorf("record: empty output")
	}
	if in.ModelID == "" {
		return nil, nil, fmt.Errorf("record: empty model id")
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	art := &Artifacts{}

	contentCID, err := b.CAS.Put([]byte(in.Output))
	if err != nil {
		return nil, nil, fmt.Errorf("record: store content: %w", err)
	}
	art.ContentCID = contentCID

	modelHash := canonical.ZeroDigest
	if in.ModelConfig != "" {
		modelHash = canonical.DigestText(in.ModelConfig)
	} else {
		art.Warnings = append(art.Warnings, WarnModelConfigUnknown)
	}

	r := &Record{
		Version:             Version,
		ModelID:             in.ModelID,
		ModelHash:           modelHash,
		PromptHash:          canonical.DigestText(in.Prompt),
		OutputHash:          canonical.DigestText(in.Output),
		ParamsHash:          canonical.DigestParams(in.Params),
		ContentCID:          contentCID.String(),
		Timestamp:           now().UnixMilli(),
		AttestationStrategy: string(attest.StrategyNone),
		KeywordsHash:        canonical.ZeroDigest,
		ProgramHash:         canonical.ZeroDigest,
	}

	if in.StorePrompt && in.Prompt != "" {
		if id, perr := b.CAS.Put([]byte(in.Prompt)); perr == nil {
			art.PromptCID = id
		} else {
			art.Warnings = append(art.Warnings, WarnPromptUnstored)
		}
	}

	if a := in.Attestation; a != nil && a.Journal != nil {
		r.AttestationStrategy = string(a.Strategy)
		r.KeywordsHash = attest.DigestKeywords(a.Journal.Keywords)
		r.ProgramHash = canonical.ToFixedWidth(a.Journal.ProgramHash)

		stored := true
		if jID, jerr := b.CAS.Put(a.JournalBytes); jerr == nil {
			art.JournalCID = jID
		} else {
			stored = false
		}
		if len(a.Proof) > 0 {
			if pID, perr := b.CAS.Put(a.Proof); perr == nil {
				art.ProofCID = pID
			} else {
				stored = false
			}
		} else if a.Strategy.IsZK() {
			art.Warnings = append(art.Warnings, WarnAttestationProofless)
		}

		if !stored {
			// Keep the hashes, drop the CIDs. Verifiers can still check the
			// bound keyword digest; they just cannot fetch the artifacts.
			art.JournalCID = cid.Undef
			art.ProofCID = cid.Undef
			art.Warnings = append(art.Warnings, WarnAttestationUnstored)
		} else {
			if art.JournalCID.Defined() {
				r.JournalCID = art.JournalCID.String()
			}
			if art.ProofCID.Defined() {
				r.ProofCID = art.ProofCID.String()
			}
		}
	}

	return r, art, nil
}
