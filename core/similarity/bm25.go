package similarity

import (
	"context"
	"fmt"
	"math"
	"strings"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// BM25 ranks texts with the Okapi BM25 weighting over the same character
// n-gram terms as LexicalVector. Raw BM25 scores are unbounded, so the
// result is normalized by the best score of the call to fit [0,1].
type BM25 struct {
	K1 float64
	B  float64
}

func NewBM25() *BM25 {
	return &BM25{K1: bm25K1, B: bm25B}
}

func (b *BM25) Name() string {
	return "bm25"
}

func (b *BM25) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	if len(texts) == 0 {
		return []float64{}, nil
	}

	queryCounts := countNgrams(foldRunes(query))
	if len(queryCounts) == 0 {
		return nil, fmt.Errorf("no query terms for query %q", query)
	}

	counts := make([]map[string]int, len(texts))
	lengths := make([]float64, len(texts))
	documentFrequency := map[string]int{}
	var totalLength float64
	for i, text := range texts {
		counts[i] = countNgrams(foldRunes(text))
		for gram, count := range counts[i] {
			documentFrequency[gram]++
			lengths[i] += float64(count)
		}
		totalLength += lengths[i]
	}
	averageLength := totalLength / float64(len(texts))
	if averageLength == 0 {
		return make([]float64, len(texts)), nil
	}

	totalDocuments := float64(len(texts))
	scores := make([]float64, len(texts))
	var maxScore float64
	for i := range texts {
		var score float64
		for gram := range queryCounts {
			frequency := float64(counts[i][gram])
			if frequency == 0 {
				continue
			}
			df := float64(documentFrequency[gram])
			idf := math.Log(1 + (totalDocuments-df+0.5)/(df+0.5))
			score += idf * frequency * (b.K1 + 1) /
				(frequency + b.K1*(1-b.B+b.B*lengths[i]/averageLength))
		}
		scores[i] = score
		if score > maxScore {
			maxScore = score
		}
	}

	if maxScore > 0 {
		for i := range scores {
			scores[i] /= maxScore
		}
	}
	return scores, nil
}
