// Package retrieval drives the depth-bounded, confidence-driven search loop:
// it issues vector store lookups, decides per branch whether to refine the
// query further, merges and deduplicates everything found across branches,
// and reranks the pool against the original query.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/siherrmann/recurve/core/dedup"
	"github.com/siherrmann/recurve/core/similarity"
	"github.com/siherrmann/recurve/core/subquery"
	"github.com/siherrmann/recurve/helper"
	"github.com/siherrmann/recurve/model"
)

// Final scores blend the raw vector store score with the rerank similarity
const (
	vectorWeight     = 0.4
	similarityWeight = 0.6
)

// Searcher is the injected vector store lookup. An empty topic searches the
// whole store.
type Searcher interface {
	Search(ctx context.Context, query string, k int, topic string) ([]*model.Candidate, error)
}

// Dependencies holds the collaborators of a Retriever. Searcher is required;
// everything else has a working default.
type Dependencies struct {
	Searcher Searcher
	// SubQueries generates refined follow-up queries, defaults to the
	// deterministic heuristic chain
	SubQueries subquery.Generator
	// Reranker backs the cross_encoder method and is required for it
	Reranker similarity.Reranker
	Cache    *Cache
	Logger   *slog.Logger
}

// Retriever executes recursive retrieval calls against a fixed, validated
// config. It is safe for concurrent use; each call owns its own tree and
// scoring state.
type Retriever struct {
	config model.RetrieverConfig
	deps   Dependencies
}

// NewRetriever validates the config and the method/dependency combination.
// Configuration problems surface here, never mid-retrieval.
func NewRetriever(config model.RetrieverConfig, deps Dependencies) (*Retriever, error) {
	err := config.Validate()
	if err != nil {
		return nil, helper.NewError("error validating retriever config", err)
	}
	if deps.Searcher == nil {
		return nil, fmt.Errorf("retriever requires a searcher")
	}
	if config.RerankMethod == model.RerankMethodCrossEncoder {
		if _, err := similarity.NewCrossEncoder(deps.Reranker); err != nil {
			return nil, helper.NewError("error validating rerank method", err)
		}
	}
	if deps.SubQueries == nil {
		deps.SubQueries = subquery.NewChain(nil, deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Retriever{
		config: config,
		deps:   deps,
	}, nil
}

// Config returns a copy of the retriever's config
func (r *Retriever) Config() model.RetrieverConfig {
	return r.config
}

// Options tune a single retrieval call
type Options struct {
	// Topic scopes every vector store lookup of the call
	Topic string
	// ReturnReport requests the full retrieval report alongside the results
	ReturnReport bool
}

// Retrieve runs one recursive retrieval call and returns the final ranked
// candidates, a report when requested, and an error only for unusable input.
// Branch-local lookup failures never surface here; they are absorbed into
// the report and the call returns whatever it could assemble.
func (r *Retriever) Retrieve(ctx context.Context, query string, options *Options) ([]*model.Candidate, *model.Report, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil, fmt.Errorf("empty query")
	}
	if options == nil {
		options = &Options{}
	}

	if r.deps.Cache != nil {
		if results, report, ok := r.deps.Cache.Get(query, options.Topic, &r.config); ok {
			if !options.ReturnReport {
				report = nil
			}
			return results, report, nil
		}
	}

	start := time.Now()
	call := r.newCall()
	pool := call.expand(ctx, query, 1, -1, options.Topic)

	deduped := call.deduplicator.Dedupe(ctx, pool)
	if r.config.EnableReranking && len(deduped) > 1 {
		call.blend(ctx, query, deduped)
	}
	if len(deduped) > r.config.FinalK {
		deduped = deduped[:r.config.FinalK]
	}

	report := &model.Report{
		RecursionDepthUsed: call.tree.MaxSearchedDepth(),
		TotalResults:       len(pool),
		FinalResults:       len(deduped),
		ExecutionTime:      time.Since(start),
		Partial:            call.partial,
		SubQueryFallbacks:  call.subQueryFallbacks,
		RerankFallback:     call.scorer.Degraded(),
		Tree:               call.tree,
	}

	if r.deps.Cache != nil && !call.partial {
		r.deps.Cache.Put(query, options.Topic, &r.config, deduped, report)
	}

	if !options.ReturnReport {
		return deduped, nil, nil
	}
	return deduped, report, nil
}

// call is the mutable state of one retrieval invocation. It is never shared
// across calls, so the retriever itself stays stateless and concurrent calls
// only touch the read-only config.
type call struct {
	retriever    *Retriever
	tree         *model.RecursionTree
	scorer       *similarity.Scorer
	deduplicator *dedup.Deduplicator
	generator    subquery.Generator

	attempted      map[string]struct{}
	totalQueries   int
	totalDocuments int

	partial           bool
	subQueryFallbacks int
}

func (r *Retriever) newCall() *call {
	c := &call{
		retriever: r,
		tree:      model.NewRecursionTree(),
		attempted: map[string]struct{}{},
	}

	var primary similarity.Method
	switch r.config.RerankMethod {
	case model.RerankMethodBM25:
		primary = similarity.NewBM25()
	case model.RerankMethodCrossEncoder:
		// Validated at construction, cannot fail here
		primary, _ = similarity.NewCrossEncoder(r.deps.Reranker)
	default:
		primary = similarity.NewLexicalVector()
	}
	c.scorer = similarity.NewScorer(primary, nil, r.deps.Logger)
	c.deduplicator = dedup.NewDeduplicator(r.config.DeduplicationThreshold, c.scorer)

	generator := r.deps.SubQueries
	if chain, ok := generator.(*subquery.Chain); ok {
		// Per-call copy so fallback events land in this call's report
		callChain := *chain
		callChain.OnFallback = func(err error) {
			c.subQueryFallbacks++
		}
		generator = &callChain
	}
	c.generator = generator

	return c
}

// expand explores one branch depth-first and returns every candidate the
// branch and its children produced. Each explored query becomes a node in
// the call's tree, including branches cut by budgets or failures.
func (c *call) expand(ctx context.Context, query string, depth int, parent int, topic string) []*model.Candidate {
	config := c.retriever.config
	id := c.tree.AddNode(parent, query, depth)

	if c.totalQueries >= config.MaxQueryAttempts || c.totalDocuments >= config.MaxTotalDocuments {
		c.tree.Node(id).Status = model.NodeStatusBudgetReached
		return nil
	}

	key := strings.ToLower(strings.TrimSpace(query))
	if _, seen := c.attempted[key]; seen {
		c.tree.Node(id).Status = model.NodeStatusDuplicateQuery
		return nil
	}
	c.attempted[key] = struct{}{}
	c.totalQueries++

	if ctx.Err() != nil {
		c.tree.Node(id).Status = model.NodeStatusCancelled
		c.partial = true
		return nil
	}

	k := config.InitialK
	if depth > 1 {
		k = config.IntermediateK
	}

	c.tree.Node(id).Searched = true
	found, err := c.retriever.deps.Searcher.Search(ctx, query, k, topic)
	if err != nil {
		node := c.tree.Node(id)
		if ctx.Err() != nil {
			node.Status = model.NodeStatusCancelled
			c.partial = true
		} else {
			node.Status = model.NodeStatusLookupError
			node.Err = err.Error()
			node.Failed = true
			c.retriever.deps.Logger.Warn(
				"vector store lookup failed, branch treated as empty",
				slog.String("query", query),
				slog.Int("depth", depth),
				slog.Any("error", err),
			)
		}
		return nil
	}
	c.totalDocuments += len(found)

	// Stamp each candidate with its branch before scores get blended later
	candidates := model.CloneCandidates(found)
	path := c.tree.PathTo(id)
	var scoreSum float64
	for _, candidate := range candidates {
		candidate.RetrievalDepth = depth
		candidate.RetrievalPath = append([]string{}, path...)
		scoreSum += candidate.Score
	}
	averageScore := 0.0
	if len(candidates) > 0 {
		averageScore = scoreSum / float64(len(candidates))
	}

	node := c.tree.Node(id)
	node.Results = len(candidates)
	node.AvgScore = averageScore
	switch {
	case len(candidates) == 0:
		node.Status = model.NodeStatusNoResults
		node.Failed = true
	case averageScore < config.MinResultQuality:
		node.Status = model.NodeStatusLowQuality
		node.Failed = true
	default:
		node.Status = model.NodeStatusOK
	}

	pool := candidates
	if c.shouldRecurse(depth, averageScore) {
		subQueries, _ := c.generator.Generate(ctx, query, candidates, config.NumSubQuestions)
		// Generators are asked for NumSubQuestions, the cap holds regardless
		if len(subQueries) > config.NumSubQuestions {
			subQueries = subQueries[:config.NumSubQuestions]
		}
		for _, subQuery := range subQueries {
			if c.totalQueries >= config.MaxQueryAttempts || c.totalDocuments >= config.MaxTotalDocuments {
				break
			}
			if ctx.Err() != nil {
				c.partial = true
				break
			}
			pool = append(pool, c.expand(ctx, subQuery, depth+1, id, topic)...)
		}
	}
	return pool
}

func (c *call) shouldRecurse(depth int, averageScore float64) bool {
	config := c.retriever.config
	return config.EnableRecursion &&
		config.GenerateSubQuestions &&
		config.NumSubQuestions > 0 &&
		depth < config.MaxRecursionDepth &&
		averageScore < config.MinConfidenceScore &&
		c.totalQueries < config.MaxQueryAttempts &&
		c.totalDocuments < config.MaxTotalDocuments
}

// blend folds the similarity of each candidate to the root query into its
// score and restores descending order. Ties keep dedup order.
func (c *call) blend(ctx context.Context, query string, candidates []*model.Candidate) {
	texts := make([]string, len(candidates))
	for i, candidate := range candidates {
		texts[i] = candidate.Content
	}
	similarities := c.scorer.Score(ctx, query, texts)
	for i, candidate := range candidates {
		candidate.Score = vectorWeight*candidate.Score + similarityWeight*similarities[i]
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}
