package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/recurve"
	"github.com/siherrmann/recurve/core/retrieval"
	"github.com/siherrmann/recurve/helper"
	"github.com/siherrmann/recurve/model"
)

const sampleContent = `This is a sample document about retrieval systems.

Recursive retrieval expands a query into follow-up questions when the first
results are weak. Each follow-up is searched on its own, and the combined pool
is deduplicated and reranked before returning.

PostgreSQL with the pgvector extension stores the chunk embeddings. Similarity
search finds the chunks closest to the query embedding within a topic.

Confidence thresholds decide when to stop expanding a branch, and global
budgets cap how many lookups a single call may issue.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	r, err := recurve.NewRecurve(dbConfig, model.DefaultRetrieverConfig(), 384)
	if err != nil {
		log.Fatalf("Failed to create recurve: %v", err)
	}
	defer r.Close()

	// Set up the default pipeline (semantic chunking + embeddings)
	if err := r.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	doc := &model.Document{
		Title:   "Introduction to Recursive Retrieval",
		Source:  "postgres_example",
		Topic:   "retrieval",
		Content: sampleContent,
		Metadata: model.Metadata{
			"author": "Example Author",
		},
	}

	fmt.Println("Ingesting document...")
	numChunks, err := r.ProcessAndInsertDocument(doc)
	if err != nil {
		log.Fatalf("Failed to process and insert document: %v", err)
	}
	fmt.Printf("Document inserted with ID: %s\n", doc.RID)
	fmt.Printf("Inserted %d chunks\n", numChunks)

	queryText := "When does recursive retrieval stop expanding?"
	fmt.Printf("\nQuerying: %s\n", queryText)

	candidates, record, err := r.RetrieveAndRecord(context.Background(), queryText, &retrieval.Options{
		Topic: "retrieval",
	})
	if err != nil {
		log.Fatalf("Failed to retrieve: %v", err)
	}

	fmt.Printf("\nFound %d results:\n", len(candidates))
	for i, candidate := range candidates {
		fmt.Printf("\n--- Result %d ---\n", i+1)
		fmt.Printf("Score: %.4f\n", candidate.Score)
		fmt.Printf("Content: %s\n", candidate.Content)
		fmt.Printf("Origin: %s\n", candidate.Origin)
	}

	fmt.Printf("\nRecorded retrieval %s (depth %d, %dms)\n",
		record.RID, record.DepthUsed, record.ExecutionMs)

	// The stored record can be listed later
	recent, err := r.Retrievals.SelectRecentRetrievals(5)
	if err != nil {
		log.Fatalf("Failed to list retrievals: %v", err)
	}
	fmt.Printf("Stored retrievals: %d\n", len(recent))

	fmt.Println("\nPostgres example completed successfully!")
}
