package attest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/veritext/veritext/canonical"
)

// Strategy names the attestation mode recorded in a provenance record.
type Strategy string

const (
	// StrategyNone means no attestation was attempted or it failed.
	StrategyNone Strategy = "none"
	// StrategyMock is the in-process extractor with no proof.
	StrategyMock Strategy = "zk-keywords-mock"
	// StrategyZK is the external prover producing a journal and proof.
	StrategyZK Strategy = "zk-keywords"
)

// IsZK reports whether s names a zero-knowledge-backed strategy.
func (s Strategy) IsZK() bool {
	return len(s) >= 3 && s[:3] == "zk-" && s != StrategyMock
}

// Result is a completed attestation. Proof is nil for non-ZK strategies.
type Result struct {
	Strategy     Strategy
	Journal      *Journal
	JournalBytes []byte
	Proof        []byte
}

// Runner produces an attestation over input text.
//
// A Runner either succeeds with a complete Result or fails with an error;
// it never returns a partial attestation.
type Runner interface {
	Run(ctx context.Context, input string) (*Result, error)
	Strategy() Strategy
}

// MockRunner computes the journal in-process. It produces no proof.
type MockRunner struct {
	// TopN caps the keyword list; zero means DefaultTopN.
	TopN int
}

func (m *MockRunner) Strategy() Strategy { return StrategyMock }

func (m *MockRunner) Run(ctx context.Context, input string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kws := ExtractKeywords(input, m.TopN)
	j := &Journal{
		ProgramHash: MockProgramHash,
		InputHash:   canonical.DigestText(input),
		OutputHash:  DigestKeywords(kws),
		Keywords:    kws,
	}
	b, err := j.Marshal()
	if err != nil {
		return nil, err
	}
	return &Result{
		Strategy:     StrategyMock,
		Journal:      j,
		JournalBytes: b,
		Proof:        nil,
	}, nil
}

// DefaultExecTimeout bounds a prover run when ExecRunner.Timeout is zero.
const DefaultExecTimeout = 5 * time.Minute

// ExecRunner shells out to an external prover binary.
//
// The binary is invoked as:
//
//	BIN --input <file> --out <journal> --proof <proof>
//
// Exit status zero with both output files present is the only success shape.
type ExecRunner struct {
	// Bin is the prover binary path.
	Bin string
	// Timeout bounds the run; zero means DefaultExecTimeout.
	Timeout time.Duration
	// Dir overrides the working directory for temp files when non-empty.
	Dir string
}

func (e *ExecRunner) Strategy() Strategy { return StrategyZK }

func (e *ExecRunner) Run(ctx context.Context, input string) (*Result, error) {
	if e.Bin == "" {
		return nil, errors.New("attest: no prover binary configured")
	}

	dir, err := os.MkdirTemp(e.Dir, "attest-*")
	if err != nil {
		return nil, fmt.Errorf("attest: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input.txt")
	journalPath := filepath.Join(dir, "journal.json")
	proofPath := filepath.Join(dir, "proof.bin")
	if err := os.WriteFile(inPath, []byte(input), 0o600); err != nil {
		return nil, fmt.Errorf("attest: write input: %w", err)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.Bin,
		"--input", inPath,
		"--out", journalPath,
		"--proof", proofPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("attest: prover timed out after %s", timeout)
		}
		return nil, fmt.Errorf("attest: prover failed: %w: %s", err, trimOutput(out))
	}

	journalBytes, err := os.ReadFile(journalPath)
	if err != nil {
		return nil, fmt.Errorf("attest: prover wrote no journal: %w", err)
	}
	proof, err := os.ReadFile(proofPath)
	if err != nil {
		return nil, fmt.Errorf("attest: prover wrote no proof: %w", err)
	}

	journal, err := ParseJournal(journalBytes)
	if err != nil {
		return nil, fmt.Errorf("attest: prover journal invalid: %w", err)
	}

	return &Result{
		Strategy:     StrategyZK,
		Journal:      journal,
		JournalBytes: journalBytes,
		Proof:        proof,
	}, nil
}

func trimOutput(b []byte) string {
	const max = 512
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
