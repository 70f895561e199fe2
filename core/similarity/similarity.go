// Package similarity scores candidate texts against a query and reorders
// candidate pools by relevance. Every scoring strategy implements Method and
// may fail; the Scorer wraps a primary method with a degraded fallback so
// callers never see an error.
package similarity

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/siherrmann/recurve/model"
)

// Method turns a query and a set of texts into relevance scores in [0,1],
// aligned to input order. A method is allowed to fail on degenerate input.
type Method interface {
	Name() string
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Scorer is the never-failing scoring surface used by retrieval and dedup.
// Score returns one value in [0,1] per input text and Rerank reorders
// candidates by descending score with a stable tie-break on input order.
type Scorer struct {
	primary  Method
	fallback Method
	logger   *slog.Logger
	// OnFallback is invoked once per degradation from primary to fallback
	OnFallback func(method string, err error)
	degraded   bool
}

// NewScorer wraps the primary method with the guaranteed fallback. A nil
// fallback defaults to SequenceOverlap, which cannot fail.
func NewScorer(primary Method, fallback Method, logger *slog.Logger) *Scorer {
	if fallback == nil {
		fallback = NewSequenceOverlap()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Score returns one relevance value per text. It never fails: an empty text
// slice yields an empty slice, and any primary method failure degrades to the
// fallback method for the rest of the scorer's lifetime.
func (s *Scorer) Score(ctx context.Context, query string, texts []string) []float64 {
	if len(texts) == 0 {
		return []float64{}
	}

	if !s.degraded && s.primary != nil {
		scores, err := s.primary.Score(ctx, query, texts)
		if err == nil && len(scores) == len(texts) {
			return clampAll(scores)
		}
		s.degraded = true
		s.logger.Warn(
			"similarity method degraded to fallback",
			slog.String("method", s.primary.Name()),
			slog.String("fallback", s.fallback.Name()),
			slog.Any("error", err),
		)
		if s.OnFallback != nil {
			s.OnFallback(s.primary.Name(), err)
		}
	}

	scores, err := s.fallback.Score(ctx, query, texts)
	if err != nil || len(scores) != len(texts) {
		// The fallback contract is to never fail, so this only guards a
		// misbehaving custom fallback.
		scores = make([]float64, len(texts))
	}
	return clampAll(scores)
}

// Rerank returns the topN candidates ordered by descending similarity to the
// query. Ties keep input order. A topN below 1 or above the pool size returns
// the whole reordered pool.
func (s *Scorer) Rerank(ctx context.Context, query string, candidates []*model.Candidate, topN int) []*model.Candidate {
	if len(candidates) == 0 {
		return []*model.Candidate{}
	}

	texts := make([]string, len(candidates))
	for i, candidate := range candidates {
		texts[i] = candidate.Content
	}
	scores := s.Score(ctx, query, texts)

	indices := make([]int, len(candidates))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return scores[indices[i]] > scores[indices[j]]
	})

	if topN < 1 || topN > len(candidates) {
		topN = len(candidates)
	}
	ranked := make([]*model.Candidate, topN)
	for i := 0; i < topN; i++ {
		ranked[i] = candidates[indices[i]]
	}
	return ranked
}

// Degraded reports whether the scorer has fallen back to its secondary method
func (s *Scorer) Degraded() bool {
	return s.degraded
}

func clampAll(scores []float64) []float64 {
	for i, score := range scores {
		scores[i] = clamp01(score)
	}
	return scores
}

func clamp01(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
