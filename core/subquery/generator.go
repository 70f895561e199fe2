// Package subquery produces refined follow-up queries for under-confident
// retrieval branches. A model-backed strategy is preferred when a language
// model is configured; a deterministic heuristic covers the rest.
package subquery

import (
	"context"
	"log/slog"

	"github.com/siherrmann/recurve/model"
)

// Generator turns a query and the candidates observed so far into up to n
// new query strings
type Generator interface {
	Generate(ctx context.Context, query string, candidates []*model.Candidate, n int) ([]string, error)
}

// Chain tries the primary generator and silently falls back to the backup on
// any failure. Generation through a chain never fails; the worst case is an
// empty sub-query list.
type Chain struct {
	Primary Generator
	Backup  Generator
	Logger  *slog.Logger
	// OnFallback is invoked whenever the primary strategy failed for a call
	OnFallback func(err error)
}

// NewChain builds the usual model-then-heuristic chain. Primary may be nil
// when no language model is configured.
func NewChain(primary Generator, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		Primary: primary,
		Backup:  NewHeuristic(),
		Logger:  logger,
	}
}

func (c *Chain) Generate(ctx context.Context, query string, candidates []*model.Candidate, n int) ([]string, error) {
	if n < 1 {
		return []string{}, nil
	}

	if c.Primary != nil {
		queries, err := c.Primary.Generate(ctx, query, candidates, n)
		if err == nil {
			return queries, nil
		}
		c.Logger.Warn(
			"sub-query generation degraded to heuristic",
			slog.String("query", query),
			slog.Any("error", err),
		)
		if c.OnFallback != nil {
			c.OnFallback(err)
		}
	}

	queries, err := c.Backup.Generate(ctx, query, candidates, n)
	if err != nil {
		// The heuristic cannot fail, this guards a custom backup only
		return []string{}, nil
	}
	return queries, nil
}
