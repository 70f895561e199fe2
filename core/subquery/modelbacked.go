package subquery

import (
	"context"
	"fmt"
	"strings"

	"github.com/siherrmann/recurve/model"
)

const (
	promptMaxSnippets     = 3
	promptSnippetRunes    = 200
	minGeneratedRuneCount = 6
)

// Completer is the narrow language model surface the generator needs
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelBacked asks a language model for refined follow-up queries, feeding
// it the original query and a short summary of the candidates seen so far.
type ModelBacked struct {
	Model Completer
}

// NewModelBacked fails on a nil model so the chain can decide up front
// whether a model strategy exists at all.
func NewModelBacked(completer Completer) (*ModelBacked, error) {
	if completer == nil {
		return nil, fmt.Errorf("model backed generation requires a completer")
	}
	return &ModelBacked{Model: completer}, nil
}

func (m *ModelBacked) Generate(ctx context.Context, query string, candidates []*model.Candidate, n int) ([]string, error) {
	if n < 1 {
		return []string{}, nil
	}

	response, err := m.Model.Complete(ctx, buildPrompt(query, candidates, n))
	if err != nil {
		return nil, fmt.Errorf("sub-query completion: %w", err)
	}

	queries := parseQuestions(response, query, n)
	if len(queries) == 0 {
		return nil, fmt.Errorf("no usable sub-queries in model response")
	}
	return queries, nil
}

func buildPrompt(query string, candidates []*model.Candidate, n int) string {
	var summary strings.Builder
	for i, candidate := range candidates {
		if i == promptMaxSnippets {
			break
		}
		summary.WriteString(capSnippet(candidate.Content, promptSnippetRunes))
		summary.WriteString("\n")
	}

	return fmt.Sprintf(`Based on the original query and the partial retrieval results below, generate %d more specific follow-up queries.

Original query: %s

Result summary:
%s
Write %d questions, one per line:`, n, query, summary.String(), n)
}

// parseQuestions extracts one query per response line, strips list markers,
// and drops lines too short to be a real question or equal to the original
func parseQuestions(response string, original string, n int) []string {
	var queries []string
	for _, line := range strings.Split(response, "\n") {
		line = stripListMarker(strings.TrimSpace(line))
		if len([]rune(line)) < minGeneratedRuneCount {
			continue
		}
		if strings.EqualFold(line, original) {
			continue
		}
		queries = append(queries, line)
		if len(queries) == n {
			break
		}
	}
	return queries
}

func stripListMarker(line string) string {
	line = strings.TrimLeft(line, "-*• \t")
	runes := []rune(line)
	for i, r := range runes {
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == ')' || r == ':' {
			if i > 0 {
				return strings.TrimSpace(string(runes[i+1:]))
			}
		}
		break
	}
	return strings.TrimSpace(line)
}
