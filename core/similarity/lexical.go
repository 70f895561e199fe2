package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	lexicalMinGram     = 1
	lexicalMaxGram     = 2
	lexicalMaxFeatures = 100
)

// LexicalVector scores texts by cosine similarity in a character n-gram
// tf-idf space built over the query and all texts of one call. Character
// n-grams of length 1 to 2 capture lexical overlap independent of token
// order and work for scripts without whitespace-delimited words.
type LexicalVector struct {
	MaxFeatures int
}

// NewLexicalVector creates the scorer with the default feature cap
func NewLexicalVector() *LexicalVector {
	return &LexicalVector{MaxFeatures: lexicalMaxFeatures}
}

func (l *LexicalVector) Name() string {
	return "lexical_vector"
}

// Score vectorizes the query together with the texts and returns the cosine
// similarity between the query vector and each text vector. It fails on an
// empty query or when no n-gram vocabulary can be built.
func (l *LexicalVector) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	if len(texts) == 0 {
		return []float64{}, nil
	}

	documents := make([][]rune, 0, len(texts)+1)
	documents = append(documents, foldRunes(query))
	for _, text := range texts {
		documents = append(documents, foldRunes(text))
	}

	counts := make([]map[string]int, len(documents))
	documentFrequency := map[string]int{}
	for i, runes := range documents {
		counts[i] = countNgrams(runes)
		for gram := range counts[i] {
			documentFrequency[gram]++
		}
	}
	if len(documentFrequency) == 0 {
		return nil, fmt.Errorf("no n-gram vocabulary for query %q", query)
	}

	vocabulary := selectVocabulary(documentFrequency, l.MaxFeatures)

	// Smoothed idf as in common tf-idf vectorizers, keeps every weight > 0
	totalDocuments := float64(len(documents))
	idf := make([]float64, len(vocabulary))
	for i, gram := range vocabulary {
		idf[i] = math.Log((1+totalDocuments)/(1+float64(documentFrequency[gram]))) + 1
	}

	vectors := make([][]float64, len(documents))
	for i := range documents {
		vectors[i] = vectorize(counts[i], vocabulary, idf)
	}

	queryVector := vectors[0]
	scores := make([]float64, len(texts))
	for i := range texts {
		scores[i] = cosine(queryVector, vectors[i+1])
	}
	return scores, nil
}

func foldRunes(text string) []rune {
	return []rune(strings.ToLower(text))
}

func countNgrams(runes []rune) map[string]int {
	counts := map[string]int{}
	for n := lexicalMinGram; n <= lexicalMaxGram; n++ {
		for i := 0; i+n <= len(runes); i++ {
			gram := string(runes[i : i+n])
			if strings.TrimSpace(gram) == "" {
				continue
			}
			counts[gram]++
		}
	}
	return counts
}

// selectVocabulary keeps the maxFeatures most frequent n-grams, tie-broken
// lexicographically so the vector space is deterministic
func selectVocabulary(documentFrequency map[string]int, maxFeatures int) []string {
	vocabulary := make([]string, 0, len(documentFrequency))
	for gram := range documentFrequency {
		vocabulary = append(vocabulary, gram)
	}
	sort.Slice(vocabulary, func(i, j int) bool {
		if documentFrequency[vocabulary[i]] != documentFrequency[vocabulary[j]] {
			return documentFrequency[vocabulary[i]] > documentFrequency[vocabulary[j]]
		}
		return vocabulary[i] < vocabulary[j]
	})
	if maxFeatures > 0 && len(vocabulary) > maxFeatures {
		vocabulary = vocabulary[:maxFeatures]
	}
	sort.Strings(vocabulary)
	return vocabulary
}

func vectorize(counts map[string]int, vocabulary []string, idf []float64) []float64 {
	vector := make([]float64, len(vocabulary))
	var norm float64
	for i, gram := range vocabulary {
		weight := float64(counts[gram]) * idf[i]
		vector[i] = weight
		norm += weight * weight
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vector {
			vector[i] /= norm
		}
	}
	return vector
}

func cosine(a []float64, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	// Vectors are l2-normalized, the dot product is the cosine
	if math.IsNaN(dot) {
		return 0
	}
	return dot
}
