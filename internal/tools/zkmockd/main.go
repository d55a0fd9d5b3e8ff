// zkmockd is a stand-in prover for local development.
//
// It speaks the external prover contract used by attest.ExecRunner:
//
//	zkmockd --input <file> --out <journal> --proof <proof>
//
// and produces a journal with the real prover's keyword semantics (stopword
// filtering, top five by count) plus a fake deterministic proof. The proof
// carries no cryptographic weight; verification reports it as unverified.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/veritext/veritext/attest"
	"github.com/veritext/veritext/canonical"
)

const topN = 5

var programHash = canonical.DigestText("zkmockd_program_v1")

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "his": true,
	"has": true, "had": true, "how": true, "man": true, "new": true,
	"now": true, "old": true, "see": true, "two": true, "way": true,
	"who": true, "did": true, "get": true, "him": true, "its": true,
	"that": true, "this": true, "with": true, "from": true, "they": true,
	"have": true, "been": true, "were": true, "their": true, "which": true,
	"would": true, "there": true, "about": true, "these": true, "other": true,
}

func main() {
	input := flag.String("input", "", "Input text file")
	out := flag.String("out", "", "Journal output file")
	proof := flag.String("proof", "", "Proof output file")
	flag.Parse()

	if *input == "" || *out == "" || *proof == "" {
		fmt.Fprintln(os.Stderr, "usage: zkmockd --input <file> --out <journal> --proof <proof>")
		os.Exit(2)
	}

	text, err := os.ReadFile(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(1)
	}

	inputHash := canonical.DigestText(string(text))
	keywords := extract(string(text))
	journal := attest.Journal{
		ProgramHash: programHash,
		InputHash:   inputHash,
		OutputHash:  attest.DigestKeywords(keywords),
		Keywords:    keywords,
	}
	journalBytes, err := json.Marshal(journal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal journal: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, journalBytes, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write journal: %v\n", err)
		os.Exit(1)
	}
	proofBytes := []byte("zkmockd-proof-v1\n" + inputHash + "\n")
	if err := os.WriteFile(*proof, proofBytes, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write proof: %v\n", err)
		os.Exit(1)
	}
}

func extract(text string) []attest.Keyword {
	counts := map[string]int{}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		counts[w]++
	}

	out := make([]attest.Keyword, 0, len(counts))
	for w, c := range counts {
		out = append(out, attest.Keyword{Word: w, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
