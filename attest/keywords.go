package attest

import (
	"sort"
	"strings"
	"unicode"

	"github.com/veritext/veritext/canonical"
)

// MockProgramHash identifies the in-process mock extractor.
var MockProgramHash = canonical.DigestText("mock_program_v1")

// DefaultTopN is the keyword cutoff used by the mock strategy.
const DefaultTopN = 10

// ExtractKeywords computes the top keywords of text.
//
// Tokens are lowercased, split on any rune that is not a letter or digit,
// and tokens of three or fewer runes are dropped. Results are ordered by
// count descending, then word ascending, truncated to topN.
func ExtractKeywords(text string, topN int) []Keyword {
	if topN <= 0 {
		topN = DefaultTopN
	}

	counts := map[string]int{}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len([]rune(w)) <= 3 {
			continue
		}
		counts[w]++
	}

	out := make([]Keyword, 0, len(counts))
	for w, c := range counts {
		out = append(out, Keyword{Word: w, Count: c})
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
