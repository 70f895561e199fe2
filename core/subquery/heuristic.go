package subquery

import (
	"context"
	"fmt"
	"strings"

	"github.com/siherrmann/recurve/model"
)

// heuristicSnippetRunes caps the candidate excerpt used as a clarifying
// modifier
const heuristicSnippetRunes = 40

// Heuristic generates sub-queries without a language model. Output is
// deterministic for identical input: a detail question over the original
// query, the query with its leading token dropped, and a clarification
// against the weakest observed candidate.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Generate(ctx context.Context, query string, candidates []*model.Candidate, n int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" || n < 1 {
		return []string{}, nil
	}

	var generated []string
	generated = append(generated, fmt.Sprintf("What are the specific details of %s?", query))

	if words := strings.Fields(query); len(words) > 1 {
		generated = append(generated, strings.Join(words[1:], " "))
	}

	if weakest := weakestCandidate(candidates); weakest != nil {
		snippet := capSnippet(weakest.Content, heuristicSnippetRunes)
		if snippet != "" {
			generated = append(generated, fmt.Sprintf("%s regarding %s", query, snippet))
		}
	}

	queries := make([]string, 0, n)
	for _, candidate := range generated {
		if candidate == query {
			continue
		}
		queries = append(queries, candidate)
		if len(queries) == n {
			break
		}
	}
	return queries, nil
}

func weakestCandidate(candidates []*model.Candidate) *model.Candidate {
	var weakest *model.Candidate
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate.Content) == "" {
			continue
		}
		if weakest == nil || candidate.Score < weakest.Score {
			weakest = candidate
		}
	}
	return weakest
}

func capSnippet(text string, maxRunes int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > maxRunes {
		text = string(runes[:maxRunes])
	}
	return strings.TrimSpace(text)
}
