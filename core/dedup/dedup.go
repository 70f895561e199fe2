// Package dedup collapses near-duplicate candidates gathered across
// recursion branches, keeping the best-scored survivor of every cluster.
package dedup

import (
	"context"
	"sort"

	"github.com/siherrmann/recurve/core/similarity"
	"github.com/siherrmann/recurve/model"
)

// Deduplicator merges candidates whose textual similarity reaches the
// threshold. It shares the similarity measure with reranking so "duplicate"
// means the same thing in both places.
type Deduplicator struct {
	Threshold float64
	Scorer    *similarity.Scorer
}

func NewDeduplicator(threshold float64, scorer *similarity.Scorer) *Deduplicator {
	return &Deduplicator{
		Threshold: threshold,
		Scorer:    scorer,
	}
}

// Dedupe returns the survivors of greedy clustering: candidates are visited
// by descending score (shallower depth, then first seen, on ties) and
// accepted only when their similarity to every prior survivor stays below
// the threshold. Surviving pairs therefore always sit below the threshold,
// and every discarded candidate lost to a strictly higher-priority one.
func (d *Deduplicator) Dedupe(ctx context.Context, candidates []*model.Candidate) []*model.Candidate {
	if len(candidates) < 2 {
		return candidates
	}

	ordered := make([]*model.Candidate, len(candidates))
	copy(ordered, candidates)
	position := make(map[*model.Candidate]int, len(candidates))
	for i, candidate := range candidates {
		position[candidate] = i
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		if ordered[i].RetrievalDepth != ordered[j].RetrievalDepth {
			return ordered[i].RetrievalDepth < ordered[j].RetrievalDepth
		}
		return position[ordered[i]] < position[ordered[j]]
	})

	survivors := make([]*model.Candidate, 0, len(ordered))
	for _, candidate := range ordered {
		if d.isDuplicate(ctx, candidate, survivors) {
			continue
		}
		survivors = append(survivors, candidate)
	}
	return survivors
}

func (d *Deduplicator) isDuplicate(ctx context.Context, candidate *model.Candidate, survivors []*model.Candidate) bool {
	if len(survivors) == 0 {
		return false
	}
	texts := make([]string, len(survivors))
	for i, survivor := range survivors {
		texts[i] = survivor.Content
	}
	for _, score := range d.Scorer.Score(ctx, candidate.Content, texts) {
		if score >= d.Threshold {
			return true
		}
	}
	return false
}
