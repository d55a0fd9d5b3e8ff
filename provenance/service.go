// Package provenance composes, publishes, verifies, and looks up signed
// generation records. It is the high-level surface the CLI drives.
package provenance

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ipfs/go-cid"

	"github.com/veritext/veritext/attest"
	"github.com/veritext/veritext/envelope"
	"github.com/veritext/veritext/index"
	"github.com/veritext/veritext/provider"
	"github.com/veritext/veritext/record"
	"github.com/veritext/veritext/storage"
	"github.com/veritext/veritext/storage/bundle"
	"github.com/veritext/veritext/verify"
)

// DefaultPromptPrefix builds the summarization prompt for raw input text.
const DefaultPromptPrefix = "Summarize the following text in one short paragraph:\n\n"

// Warning codes emitted by Compose and Publish.
const (
	WarnProviderFallback  = "provider_fallback"
	WarnAttestationFailed = "attestation_failed"
	WarnIndexUnavailable  = "index_unavailable"
)

// Service wires the provenance pipeline together. CAS is required; every
// other collaborator is optional and degrades gracefully when absent.
type Service struct {
	CAS      storage.CAS
	Index    index.Index
	Provider provider.Provider
	Attestor attest.Runner
	Domain   envelope.Domain

	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

// ComposeRequest describes one generation to record.
type ComposeRequest struct {
	// Text is the input document. Ignored when Prompt is set.
	Text string
	// Prompt overrides the default summarization prompt when non-empty.
	Prompt string
	// Params are generation parameters bound into the record.
	Params map[string]any
	// StorePrompt stores the prompt bytes and binds their CID.
	StorePrompt bool
}

// Draft is a composed, not yet published record.
type Draft struct {
	Envelope  *envelope.Envelope
	Record    *record.Record
	Artifacts *record.Artifacts
	Output    string
	Warnings  []string
}

// Compose runs generation and attestation and builds an unsigned envelope.
//
// A missing or failing provider degrades to the deterministic mock provider;
// a failing attestor degrades to no attestation. Both are reported as
// warnings, never as errors.
func (s *Service) Compose(ctx context.Context, req ComposeRequest) (*Draft, error) {
	if s == nil || s.CAS == nil {
		return nil, fmt.Errorf("provenance: no CAS configured")
	}

	prompt := req.Prompt
	if prompt == "" {
		if req.Text == "" {
			return nil, fmt.Errorf("provenance: empty input")
		}
		prompt = DefaultPromptPrefix + req.Text
	}

	var warnings []string

	gen, err := s.generate(ctx, prompt)
	if err != nil {
		gen, err = provider.Mock{}.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, WarnProviderFallback)
	}

	var attResult *attest.Result
	if s.Attestor != nil {
		attResult, err = s.Attestor.Run(ctx, gen.Output)
		if err != nil {
			attResult = nil
			warnings = append(warnings, WarnAttestationFailed)
		}
	}

	builder := &record.Builder{CAS: s.CAS, Now: s.Now}
	rec, art, err := builder.Build(record.Input{
		Prompt:      prompt,
		Output:      gen.Output,
		ModelID:     gen.ModelID,
		ModelConfig: gen.ModelConfig,
		Params:      req.Params,
		StorePrompt: req.StorePrompt,
		Attestation: attResult,
	})
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, art.Warnings...)

	env, err := envelope.New(s.domain(), rec)
	if err != nil {
		return nil, err
	}
	if art.PromptCID.Defined() {
		env.PromptCID = art.PromptCID.String()
	}

	return &Draft{
		Envelope:  env,
		Record:    rec,
		Artifacts: art,
		Output:    gen.Output,
		Warnings:  warnings,
	}, nil
}

// Sign signs a draft envelope in place.
func (s *Service) Sign(d *Draft, key *secp256k1.PrivateKey) error {
	if d == nil || d.Envelope == nil {
		return fmt.Errorf("provenance: nothing to sign")
	}
	return envelope.Sign(d.Envelope, key)
}

// Publish stores the envelope in the CAS and best-effort indexes it by
// output hash. Indexing failures are returned as a warning, not an error.
//
// The stored bytes are normalized: the type schema is pruned to the types
// the primary type reaches, and CreatedAt is stamped with the publish time.
// Neither field enters the signing digest, so normalizing here cannot break
// a signature made over the draft.
func (s *Service) Publish(ctx context.Context, env *envelope.Envelope) (cid.Cid, []string, error) {
	if s == nil || s.CAS == nil {
		return cid.Undef, nil, fmt.Errorf("provenance: no CAS configured")
	}
	if env == nil || env.Provenance == nil {
		return cid.Undef, nil, fmt.Errorf("provenance: no envelope to publish")
	}
	if err := ctx.Err(); err != nil {
		return cid.Undef, nil, err
	}
	if err := env.Provenance.Validate(); err != nil {
		return cid.Undef, nil, err
	}

	if env.PrimaryType == "" {
		env.PrimaryType = envelope.PrimaryType
	}
	types := env.Types
	if _, ok := types[env.PrimaryType]; !ok {
		types = envelope.ProvenanceTypes()
	}
	env.Types = envelope.PruneTypes(types, env.PrimaryType)
	env.CreatedAt = s.now().UTC().Format(time.RFC3339)

	b, err := env.Marshal()
	if err != nil {
		return cid.Undef, nil, err
	}
	id, err := s.CAS.Put(b)
	if err != nil {
		return cid.Undef, nil, err
	}

	var warnings []string
	if s.Index != nil {
		if ierr := s.Index.Record(env.Provenance.OutputHash, id.String()); ierr != nil {
			warnings = append(warnings, WarnIndexUnavailable)
		}
	}
	return id, warnings, nil
}

// Verify re-checks a published envelope.
func (s *Service) Verify(ctx context.Context, req verify.Request) (*verify.Report, error) {
	v := &verify.Verifier{CAS: s.CAS}
	return v.Verify(ctx, req)
}

// Lookup returns candidate signed CIDs for an output hash. Candidates are
// unverified; callers should Verify each before trusting it.
func (s *Service) Lookup(outputHash string) ([]string, error) {
	if s.Index == nil {
		return nil, fmt.Errorf("provenance: no index configured")
	}
	return s.Index.Lookup(outputHash)
}

// ExportEvidence writes a deterministic evidence bundle for a published
// envelope: the envelope block plus every artifact it references that the
// CAS still holds.
func (s *Service) ExportEvidence(w io.Writer, signedCID cid.Cid) error {
	raw, err := s.CAS.Get(signedCID)
	if err != nil {
		return err
	}
	env, err := envelope.Parse(raw)
	if err != nil {
		return err
	}
	if env.Provenance == nil {
		return fmt.Errorf("provenance: envelope has no record")
	}

	ids := []cid.Cid{signedCID}
	roles := map[string]cid.Cid{bundle.RoleSigned: signedCID}

	add := func(role, s string) {
		if s == "" {
			return
		}
		id, derr := cid.Decode(s)
		if derr != nil || !id.Defined() {
			return
		}
		ids = append(ids, id)
		roles[role] = id
	}
	add(bundle.RoleContent, env.Provenance.ContentCID)
	add(bundle.RolePrompt, env.PromptCID)
	add(bundle.RoleJournal, env.Provenance.JournalCID)
	add(bundle.RoleProof, env.Provenance.ProofCID)

	// Referenced artifacts the CAS no longer holds are skipped; the bundle
	// carries what can still be proven.
	kept := ids[:0]
	for _, id := range ids {
		if s.CAS.Has(id) {
			kept = append(kept, id)
		}
	}

	return bundle.Export(w, s.CAS, kept, bundle.ExportOptions{
		Roles:           roles,
		IncludeManifest: true,
	})
}

// ImportEvidence loads an evidence bundle's blocks into the CAS.
func (s *Service) ImportEvidence(r io.Reader) error {
	return bundle.Import(r, s.CAS)
}

func (s *Service) generate(ctx context.Context, prompt string) (*provider.Generation, error) {
	if s.Provider == nil {
		return nil, fmt.Errorf("provenance: no provider configured")
	}
	return s.Provider.Generate(ctx, prompt)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) domain() envelope.Domain {
	if s.Domain == (envelope.Domain{}) {
		return envelope.DefaultDomain()
	}
	return s.Domain
}
