package similarity

import (
	"context"
	"fmt"
	"math"
)

// Reranker is a model-backed pairwise relevance scorer, typically an ONNX
// cross encoder behind a hugot pipeline or a remote inference endpoint.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
	ModelName() string
}

// CrossEncoder adapts a Reranker to the Method interface. Cross encoder
// logits can fall outside [0,1]; when they do, the whole batch is squashed
// through a sigmoid to keep the score contract.
type CrossEncoder struct {
	Reranker Reranker
}

// NewCrossEncoder fails on a nil reranker so an unusable cross_encoder
// configuration is rejected at construction, not at call time.
func NewCrossEncoder(reranker Reranker) (*CrossEncoder, error) {
	if reranker == nil {
		return nil, fmt.Errorf("cross encoder requires a reranker model")
	}
	return &CrossEncoder{Reranker: reranker}, nil
}

func (c *CrossEncoder) Name() string {
	return "cross_encoder:" + c.Reranker.ModelName()
}

func (c *CrossEncoder) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}
	scores, err := c.Reranker.Rerank(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("reranker %s: %w", c.Reranker.ModelName(), err)
	}
	if len(scores) != len(texts) {
		return nil, fmt.Errorf("reranker %s returned %d scores for %d texts", c.Reranker.ModelName(), len(scores), len(texts))
	}

	for _, score := range scores {
		if score < 0 || score > 1 {
			return sigmoidAll(scores), nil
		}
	}
	return scores, nil
}

func sigmoidAll(scores []float64) []float64 {
	squashed := make([]float64, len(scores))
	for i, score := range scores {
		squashed[i] = 1 / (1 + math.Exp(-score))
	}
	return squashed
}
