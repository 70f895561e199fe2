package retrieval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/siherrmann/recurve/core/subquery"
	"github.com/siherrmann/recurve/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	mu      sync.Mutex
	calls   []string
	topics  []string
	results map[string][]*model.Candidate
	errors  map[string]error
}

func newStubSearcher() *stubSearcher {
	return &stubSearcher{
		results: map[string][]*model.Candidate{},
		errors:  map[string]error{},
	}
}

func (s *stubSearcher) Search(ctx context.Context, query string, k int, topic string) ([]*model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, query)
	s.topics = append(s.topics, topic)
	if err := s.errors[query]; err != nil {
		return nil, err
	}
	found := s.results[query]
	if len(found) > k {
		found = found[:k]
	}
	return found, nil
}

func (s *stubSearcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type scriptedGenerator struct {
	subQueries map[string][]string
}

func (g *scriptedGenerator) Generate(ctx context.Context, query string, candidates []*model.Candidate, n int) ([]string, error) {
	subQueries := g.subQueries[query]
	if len(subQueries) > n {
		subQueries = subQueries[:n]
	}
	return subQueries, nil
}

func candidatesFor(score float64, contents ...string) []*model.Candidate {
	candidates := make([]*model.Candidate, len(contents))
	for i, content := range contents {
		candidates[i] = &model.Candidate{
			Content: content,
			Origin:  fmt.Sprintf("origin-%s", content),
			Score:   score,
		}
	}
	return candidates
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() model.RetrieverConfig {
	config := model.DefaultRetrieverConfig()
	config.MinResultQuality = 0
	return config
}

func TestNewRetriever(t *testing.T) {
	t.Run("Rejects invalid config", func(t *testing.T) {
		config := testConfig()
		config.MaxRecursionDepth = 9

		_, err := NewRetriever(config, Dependencies{Searcher: newStubSearcher()})

		assert.Error(t, err)
	})

	t.Run("Requires a searcher", func(t *testing.T) {
		_, err := NewRetriever(testConfig(), Dependencies{})

		assert.ErrorContains(t, err, "searcher")
	})

	t.Run("Cross encoder method requires a reranker", func(t *testing.T) {
		config := testConfig()
		config.RerankMethod = model.RerankMethodCrossEncoder

		_, err := NewRetriever(config, Dependencies{Searcher: newStubSearcher()})

		assert.Error(t, err, "Unusable cross_encoder must fail at construction, not at call time")
	})
}

func TestRetrieveSingleLayer(t *testing.T) {
	ctx := context.Background()

	t.Run("Recursion disabled stays at depth one", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["what is raft"] = candidatesFor(0.2, "raft consensus paper", "raft leader election", "etcd overview")
		config := model.SingleLayerConfig()
		config.MinResultQuality = 0
		retriever, err := NewRetriever(config, Dependencies{
			Searcher:   searcher,
			SubQueries: &scriptedGenerator{subQueries: map[string][]string{"what is raft": {"never used"}}},
			Logger:     testLogger(),
		})
		require.NoError(t, err)

		results, report, err := retriever.Retrieve(ctx, "what is raft", &Options{ReturnReport: true})

		require.NoError(t, err)
		require.NotNil(t, report)
		assert.Equal(t, 1, report.RecursionDepthUsed)
		assert.Equal(t, 1, searcher.callCount(), "No sub-queries may be issued with recursion disabled")
		assert.NotEmpty(t, results)
		for _, candidate := range results {
			assert.Equal(t, 1, candidate.RetrievalDepth)
		}
	})

	t.Run("High confidence root does not recurse", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["query"] = candidatesFor(0.95, "strong answer one", "strong answer two")
		config := testConfig()
		retriever, err := NewRetriever(config, Dependencies{
			Searcher:   searcher,
			SubQueries: &scriptedGenerator{subQueries: map[string][]string{"query": {"refinement"}}},
			Logger:     testLogger(),
		})
		require.NoError(t, err)

		_, report, err := retriever.Retrieve(ctx, "query", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.Equal(t, 1, report.RecursionDepthUsed)
		assert.Equal(t, 1, searcher.callCount())
	})

	t.Run("Empty query fails", func(t *testing.T) {
		retriever, err := NewRetriever(testConfig(), Dependencies{Searcher: newStubSearcher(), Logger: testLogger()})
		require.NoError(t, err)

		_, _, err = retriever.Retrieve(ctx, "  ", nil)

		assert.Error(t, err)
	})
}

func TestRetrieveRecursion(t *testing.T) {
	ctx := context.Background()

	t.Run("Weak root recurses into sub-queries", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["root question"] = candidatesFor(0.3, "vague overview text")
		searcher.results["first refinement"] = candidatesFor(0.8, "precise answer about the first aspect")
		searcher.results["second refinement"] = candidatesFor(0.7, "precise answer about the second aspect")
		config := testConfig()
		config.MaxRecursionDepth = 2
		retriever, err := NewRetriever(config, Dependencies{
			Searcher: searcher,
			SubQueries: &scriptedGenerator{subQueries: map[string][]string{
				"root question": {"first refinement", "second refinement"},
			}},
			Logger: testLogger(),
		})
		require.NoError(t, err)

		results, report, err := retriever.Retrieve(ctx, "root question", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.Equal(t, 2, report.RecursionDepthUsed)
		assert.Equal(t, 3, report.TotalResults)
		assert.Equal(t, []string{"root question", "first refinement", "second refinement"}, searcher.calls,
			"Children must be explored depth-first in generation order")
		assert.NotEmpty(t, results)
	})

	t.Run("Near unreachable confidence always reaches the depth ceiling", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["root question"] = candidatesFor(0.9, "already a very good answer")
		searcher.results["refinement"] = candidatesFor(0.9, "another very good answer")
		config := testConfig()
		config.MinConfidenceScore = 0.95
		config.MaxRecursionDepth = 2
		retriever, err := NewRetriever(config, Dependencies{
			Searcher: searcher,
			SubQueries: &scriptedGenerator{subQueries: map[string][]string{
				"root question": {"refinement"},
			}},
			Logger: testLogger(),
		})
		require.NoError(t, err)

		_, report, err := retriever.Retrieve(ctx, "root question", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.Equal(t, 2, report.RecursionDepthUsed, "Recursion must reach depth 2 regardless of root quality")
	})

	t.Run("Candidate depth never exceeds the configured maximum", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["root question"] = candidatesFor(0.1, "weak root result")
		searcher.results["level two"] = candidatesFor(0.1, "weak second result")
		searcher.results["level three"] = candidatesFor(0.1, "weak third result")
		searcher.results["level four"] = candidatesFor(0.1, "weak fourth result")
		config := testConfig()
		config.MaxRecursionDepth = 3
		config.FinalK = 10
		retriever, err := NewRetriever(config, Dependencies{
			Searcher: searcher,
			SubQueries: &scriptedGenerator{subQueries: map[string][]string{
				"root question": {"level two"},
				"level two":     {"level three"},
				"level three":   {"level four"},
			}},
			Logger: testLogger(),
		})
		require.NoError(t, err)

		results, report, err := retriever.Retrieve(ctx, "root question", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.NotContains(t, searcher.calls, "level four", "Depth ceiling must stop expansion")
		assert.LessOrEqual(t, report.RecursionDepthUsed, 3)
		for _, candidate := range results {
			assert.LessOrEqual(t, candidate.RetrievalDepth, 3)
		}
	})

	t.Run("Retrieval paths reconstruct valid tree paths", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["root question"] = candidatesFor(0.3, "weak root result")
		searcher.results["refinement a"] = candidatesFor(0.6, "result for the first branch")
		searcher.results["refinement b"] = candidatesFor(0.6, "result for the second branch")
		config := testConfig()
		config.MaxRecursionDepth = 2
		config.FinalK = 10
		retriever, err := NewRetriever(config, Dependencies{
			Searcher: searcher,
			SubQueries: &scriptedGenerator{subQueries: map[string][]string{
				"root question": {"refinement a", "refinement b"},
			}},
			Logger: testLogger(),
		})
		require.NoError(t, err)

		results, report, err := retriever.Retrieve(ctx, "root question", &Options{ReturnReport: true})

		require.NoError(t, err)
		require.NotNil(t, report.Tree)
		for _, candidate := range results {
			assert.True(t, report.Tree.ContainsPath(candidate.RetrievalPath),
				"Path %v must exist in the retrieval tree", candidate.RetrievalPath)
		}
	})

	t.Run("Duplicate sub-queries are suppressed", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["root question"] = candidatesFor(0.2, "weak root result")
		searcher.results["refinement"] = candidatesFor(0.2, "weak refined result")
		config := testConfig()
		config.MaxRecursionDepth = 3
		retriever, err := NewRetriever(config, Dependencies{
			Searcher: searcher,
			SubQueries: &scriptedGenerator{subQueries: map[string][]string{
				"root question": {"refinement", "root question"},
				"refinement":    {"refinement"},
			}},
			Logger: testLogger(),
		})
		require.NoError(t, err)

		_, report, err := retriever.Retrieve(ctx, "root question", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.Equal(t, []string{"root question", "refinement"}, searcher.calls,
			"A query must never be looked up twice within one call")

		duplicates := 0
		report.Tree.Walk(func(node *model.RecursionNode) {
			if node.Status == model.NodeStatusDuplicateQuery {
				duplicates++
			}
		})
		assert.Equal(t, 2, duplicates)
	})
}

func TestRetrieveFailureIsolation(t *testing.T) {
	ctx := context.Background()

	t.Run("Failed child branch leaves siblings intact", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["root question"] = candidatesFor(0.3, "weak root result")
		searcher.results["healthy branch"] = candidatesFor(0.8, "useful sibling result")
		searcher.errors["broken branch"] = fmt.Errorf("connection reset")
		config := testConfig()
		config.MaxRecursionDepth = 2
		config.FinalK = 10
		retriever, err := NewRetriever(config, Dependencies{
			Searcher: searcher,
			SubQueries: &scriptedGenerator{subQueries: map[string][]string{
				"root question": {"broken branch", "healthy branch"},
			}},
			Logger: testLogger(),
		})
		require.NoError(t, err)

		results, report, err := retriever.Retrieve(ctx, "root question", &Options{ReturnReport: true})

		require.NoError(t, err, "Branch-local failures must not abort the call")
		contents := make([]string, 0, len(results))
		for _, candidate := range results {
			contents = append(contents, candidate.Content)
		}
		assert.Contains(t, contents, "useful sibling result")

		var failed *model.RecursionNode
		report.Tree.Walk(func(node *model.RecursionNode) {
			if node.Query == "broken branch" {
				failed = node
			}
		})
		require.NotNil(t, failed, "The failed branch must appear in the tree")
		assert.True(t, failed.Failed)
		assert.Equal(t, model.NodeStatusLookupError, failed.Status)
		assert.Equal(t, 0, failed.Results)
		assert.Contains(t, failed.Err, "connection reset")
	})

	t.Run("Empty lookup is a failed node, not an error", func(t *testing.T) {
		searcher := newStubSearcher()
		config := model.SingleLayerConfig()
		retriever, err := NewRetriever(config, Dependencies{Searcher: searcher, Logger: testLogger()})
		require.NoError(t, err)

		results, report, err := retriever.Retrieve(ctx, "unknown topic", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.Empty(t, results)
		require.NotNil(t, report.Tree.Root())
		assert.Equal(t, model.NodeStatusNoResults, report.Tree.Root().Status)
		assert.True(t, report.Tree.Root().Failed)
	})

	t.Run("Low quality branch is flagged but still contributes", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["query"] = candidatesFor(0.2, "marginal result")
		config := model.SingleLayerConfig()
		config.MinResultQuality = 0.5
		retriever, err := NewRetriever(config, Dependencies{Searcher: searcher, Logger: testLogger()})
		require.NoError(t, err)

		results, report, err := retriever.Retrieve(ctx, "query", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.NotEmpty(t, results, "Low quality still returns what was found")
		assert.Equal(t, model.NodeStatusLowQuality, report.Tree.Root().Status)
		assert.True(t, report.Tree.Root().Failed)
	})
}

func TestRetrieveBudgets(t *testing.T) {
	ctx := context.Background()

	t.Run("Query budget bounds lookups", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["root question"] = candidatesFor(0.1, "weak root result")
		searcher.results["sub one"] = candidatesFor(0.1, "first weak refinement")
		searcher.results["sub two"] = candidatesFor(0.1, "second weak refinement")
		config := testConfig()
		config.MaxQueryAttempts = 2
		config.MaxRecursionDepth = 4
		retriever, err := NewRetriever(config, Dependencies{
			Searcher: searcher,
			SubQueries: &scriptedGenerator{subQueries: map[string][]string{
				"root question": {"sub one", "sub two"},
				"sub one":       {"sub three"},
			}},
			Logger: testLogger(),
		})
		require.NoError(t, err)

		_, _, err = retriever.Retrieve(ctx, "root question", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.LessOrEqual(t, searcher.callCount(), 2)
	})

	t.Run("Document budget stops expansion", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["root question"] = candidatesFor(0.1, "result one", "result two", "result three")
		searcher.results["refinement"] = candidatesFor(0.1, "never reached")
		config := testConfig()
		config.MaxTotalDocuments = 3
		retriever, err := NewRetriever(config, Dependencies{
			Searcher: searcher,
			SubQueries: &scriptedGenerator{subQueries: map[string][]string{
				"root question": {"refinement"},
			}},
			Logger: testLogger(),
		})
		require.NoError(t, err)

		_, _, err = retriever.Retrieve(ctx, "root question", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.Equal(t, 1, searcher.callCount(), "Document budget must stop further lookups")
	})
}

type cancellingSearcher struct {
	inner  *stubSearcher
	cancel context.CancelFunc
}

func (s *cancellingSearcher) Search(ctx context.Context, query string, k int, topic string) ([]*model.Candidate, error) {
	found, err := s.inner.Search(ctx, query, k, topic)
	s.cancel()
	return found, err
}

func TestRetrieveCancellation(t *testing.T) {
	t.Run("Cancellation returns partial results", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		inner := newStubSearcher()
		inner.results["root question"] = candidatesFor(0.1, "result gathered before cancellation")
		inner.results["refinement"] = candidatesFor(0.9, "never gathered")
		config := testConfig()
		retriever, err := NewRetriever(config, Dependencies{
			Searcher: &cancellingSearcher{inner: inner, cancel: cancel},
			SubQueries: &scriptedGenerator{subQueries: map[string][]string{
				"root question": {"refinement"},
			}},
			Logger: testLogger(),
		})
		require.NoError(t, err)

		results, report, err := retriever.Retrieve(ctx, "root question", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.True(t, report.Partial, "Cancelled call must be marked partial")
		assert.Equal(t, 1, inner.callCount(), "No further lookups after cancellation")
		require.Len(t, results, 1)
		assert.Equal(t, "result gathered before cancellation", results[0].Content)
	})
}

func TestRetrieveRanking(t *testing.T) {
	ctx := context.Background()

	t.Run("Reranking prefers the candidate matching the root query", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["游戏闪退问题"] = []*model.Candidate{
			{Content: "显卡驱动更新", Origin: "a", Score: 0.5},
			{Content: "游戏启动崩溃", Origin: "b", Score: 0.5},
			{Content: "游戏闪退问题", Origin: "c", Score: 0.5},
		}
		config := model.SingleLayerConfig()
		config.FinalK = 2
		retriever, err := NewRetriever(config, Dependencies{Searcher: searcher, Logger: testLogger()})
		require.NoError(t, err)

		results, _, err := retriever.Retrieve(ctx, "游戏闪退问题", nil)

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "游戏闪退问题", results[0].Content)
		assert.Equal(t, "游戏启动崩溃", results[1].Content)
	})

	t.Run("Final results are truncated to final k", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["query"] = candidatesFor(0.8,
			"postgres vacuum tuning", "kafka consumer groups", "linux cgroup hierarchy",
			"raft leader election", "dns resolution order", "tls handshake basics")
		config := model.SingleLayerConfig()
		config.FinalK = 3
		retriever, err := NewRetriever(config, Dependencies{Searcher: searcher, Logger: testLogger()})
		require.NoError(t, err)

		results, report, err := retriever.Retrieve(ctx, "query", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.Len(t, results, 3)
		assert.Equal(t, 3, report.FinalResults)
		assert.Equal(t, 5, report.TotalResults, "Initial k bounds the root lookup")
	})

	t.Run("Reranking disabled keeps score order", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["query"] = []*model.Candidate{
			{Content: "medium scored answer", Origin: "a", Score: 0.5},
			{Content: "best scored answer", Origin: "b", Score: 0.9},
			{Content: "worst scored answer", Origin: "c", Score: 0.1},
		}
		config := model.SingleLayerConfig()
		config.EnableReranking = false
		retriever, err := NewRetriever(config, Dependencies{Searcher: searcher, Logger: testLogger()})
		require.NoError(t, err)

		results, _, err := retriever.Retrieve(ctx, "query", nil)

		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "best scored answer", results[0].Content)
		assert.Equal(t, 0.9, results[0].Score, "Raw scores must stay untouched without reranking")
	})

	t.Run("Report is omitted unless requested", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["query"] = candidatesFor(0.8, "some answer")
		retriever, err := NewRetriever(model.SingleLayerConfig(), Dependencies{Searcher: searcher, Logger: testLogger()})
		require.NoError(t, err)

		_, report, err := retriever.Retrieve(ctx, "query", nil)

		require.NoError(t, err)
		assert.Nil(t, report)
	})

	t.Run("Topic scopes every lookup", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["root question"] = candidatesFor(0.2, "weak root result")
		searcher.results["refinement"] = candidatesFor(0.8, "refined result")
		config := testConfig()
		retriever, err := NewRetriever(config, Dependencies{
			Searcher: searcher,
			SubQueries: &scriptedGenerator{subQueries: map[string][]string{
				"root question": {"refinement"},
			}},
			Logger: testLogger(),
		})
		require.NoError(t, err)

		_, _, err = retriever.Retrieve(ctx, "root question", &Options{Topic: "incident-reports"})

		require.NoError(t, err)
		for _, topic := range searcher.topics {
			assert.Equal(t, "incident-reports", topic)
		}
	})
}

type failingGenerator struct{}

func (f *failingGenerator) Generate(ctx context.Context, query string, candidates []*model.Candidate, n int) ([]string, error) {
	return nil, fmt.Errorf("model offline")
}

func TestRetrieveSubQueryFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("Model failure falls back and is counted in the report", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["root question"] = candidatesFor(0.1, "weak root result")
		config := testConfig()
		config.MaxRecursionDepth = 2

		retriever, err := NewRetriever(config, Dependencies{
			Searcher:   searcher,
			SubQueries: subquery.NewChain(&failingGenerator{}, testLogger()),
			Logger:     testLogger(),
		})
		require.NoError(t, err)

		_, report, err := retriever.Retrieve(ctx, "root question", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.Equal(t, 1, report.SubQueryFallbacks)
		assert.Greater(t, searcher.callCount(), 1, "Heuristic sub-queries should still be explored")
	})

	t.Run("Default chain without a model explores heuristic sub-queries", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["root question"] = candidatesFor(0.1, "weak root result")
		config := testConfig()
		config.MaxRecursionDepth = 2

		retriever, err := NewRetriever(config, Dependencies{
			Searcher: searcher,
			Logger:   testLogger(),
		})
		require.NoError(t, err)

		_, report, err := retriever.Retrieve(ctx, "root question", &Options{ReturnReport: true})

		require.NoError(t, err)
		assert.Zero(t, report.SubQueryFallbacks, "A missing model is not a degradation event")
		assert.Greater(t, searcher.callCount(), 1, "Heuristic sub-queries should still be explored")
	})
}

// floodGenerator ignores the requested count and always returns its full list
type floodGenerator struct {
	subQueries []string
}

func (g *floodGenerator) Generate(ctx context.Context, query string, candidates []*model.Candidate, n int) ([]string, error) {
	return g.subQueries, nil
}

func TestRetrieveSubQueryFanOut(t *testing.T) {
	ctx := context.Background()

	t.Run("Fan-out is capped even when the generator over-produces", func(t *testing.T) {
		searcher := newStubSearcher()
		searcher.results["root question"] = candidatesFor(0.1, "weak root result")
		searcher.results["flood one"] = candidatesFor(0.9, "answer one")
		searcher.results["flood two"] = candidatesFor(0.9, "answer two")
		searcher.results["flood three"] = candidatesFor(0.9, "answer three")

		config := testConfig()
		config.MaxRecursionDepth = 2
		config.NumSubQuestions = 1

		retriever, err := NewRetriever(config, Dependencies{
			Searcher:   searcher,
			SubQueries: &floodGenerator{subQueries: []string{"flood one", "flood two", "flood three"}},
			Logger:     testLogger(),
		})
		require.NoError(t, err)

		_, _, err = retriever.Retrieve(ctx, "root question", nil)

		require.NoError(t, err)
		assert.Equal(t, 2, searcher.callCount(), "Expected the root lookup plus one sub-query")
		assert.Equal(t, []string{"root question", "flood one"}, searcher.calls)
	})
}
