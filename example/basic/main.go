package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/siherrmann/recurve/core/retrieval"
	"github.com/siherrmann/recurve/model"
)

// memorySearcher serves a small in-memory corpus scored by word overlap.
// It stands in for a vector store so the retriever can run without a database.
type memorySearcher struct {
	corpus []string
}

func (s *memorySearcher) Search(ctx context.Context, query string, k int, topic string) ([]*model.Candidate, error) {
	queryWords := map[string]bool{}
	for _, word := range strings.Fields(strings.ToLower(query)) {
		queryWords[word] = true
	}

	var candidates []*model.Candidate
	for i, text := range s.corpus {
		matches := 0
		words := strings.Fields(strings.ToLower(text))
		for _, word := range words {
			if queryWords[word] {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		candidates = append(candidates, &model.Candidate{
			Content: text,
			Origin:  fmt.Sprintf("memory#%d", i),
			Score:   float64(matches) / float64(len(words)),
		})
	}

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func main() {
	searcher := &memorySearcher{corpus: []string{
		"Vacuum reclaims dead tuples left behind by updates and deletes.",
		"Autovacuum triggers based on the number of changed tuples per table.",
		"Table bloat grows when vacuum cannot keep up with write traffic.",
		"Index-only scans need recently vacuumed visibility maps.",
		"Replication lag is measured between primary and standby servers.",
	}}

	config := model.DefaultRetrieverConfig()
	config.FinalK = 3

	retriever, err := retrieval.NewRetriever(config, retrieval.Dependencies{
		Searcher: searcher,
	})
	if err != nil {
		log.Fatalf("Failed to create retriever: %v", err)
	}

	query := "why does table bloat grow"
	fmt.Printf("Querying: %s\n", query)

	candidates, report, err := retriever.Retrieve(context.Background(), query, &retrieval.Options{ReturnReport: true})
	if err != nil {
		log.Fatalf("Failed to retrieve: %v", err)
	}

	fmt.Printf("\nFound %d results:\n", len(candidates))
	for i, candidate := range candidates {
		fmt.Printf("%2d. [%.3f] %s\n", i+1, candidate.Score, candidate.Content)
	}

	fmt.Printf("\nDepth used: %d, total seen: %d, took %s\n",
		report.RecursionDepthUsed, report.TotalResults, report.ExecutionTime)
	if report.Tree != nil {
		fmt.Println("Query tree:")
		report.Tree.Walk(func(node *model.RecursionNode) {
			indent := strings.Repeat("  ", node.Depth-1)
			fmt.Printf("  %s- %q (%s)\n", indent, node.Query, node.Status)
		})
	}
}
