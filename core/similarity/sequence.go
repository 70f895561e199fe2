package similarity

import (
	"context"
	"strings"
)

// sequenceMaxRunes caps the compared length so the quadratic subsequence
// table stays small for pathological inputs
const sequenceMaxRunes = 512

// SequenceOverlap scores texts by longest-common-subsequence ratio against
// the query. It is the degraded fallback behind LexicalVector: cheaper,
// coarser, and guaranteed to never fail.
type SequenceOverlap struct{}

func NewSequenceOverlap() *SequenceOverlap {
	return &SequenceOverlap{}
}

func (s *SequenceOverlap) Name() string {
	return "sequence_overlap"
}

// Score returns 2*lcs/(len(query)+len(text)) per text. Any comparison it
// cannot complete scores 0; the error result is always nil.
func (s *SequenceOverlap) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	queryRunes := capRunes(strings.ToLower(query))
	scores := make([]float64, len(texts))
	for i, text := range texts {
		scores[i] = sequenceRatio(queryRunes, capRunes(strings.ToLower(text)))
	}
	return scores, nil
}

func capRunes(text string) []rune {
	runes := []rune(text)
	if len(runes) > sequenceMaxRunes {
		runes = runes[:sequenceMaxRunes]
	}
	return runes
}

func sequenceRatio(a []rune, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	lcs := longestCommonSubsequence(a, b)
	return 2 * float64(lcs) / float64(len(a)+len(b))
}

// longestCommonSubsequence uses the rolling one-row variant of the usual
// dynamic program
func longestCommonSubsequence(a []rune, b []rune) int {
	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				current[j] = previous[j-1] + 1
			} else if previous[j] >= current[j-1] {
				current[j] = previous[j]
			} else {
				current[j] = current[j-1]
			}
		}
		previous, current = current, previous
	}
	return previous[len(b)]
}
