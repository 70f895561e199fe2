package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/siherrmann/recurve"
	"github.com/siherrmann/recurve/core/pipeline"
	"github.com/siherrmann/recurve/helper"
	"github.com/spf13/cobra"
)

var (
	configPath string
	config     *Config

	rootCmd = &cobra.Command{
		Use:   "recurve",
		Short: "A cli for the recursive retrieval engine",
		Long: `Recurve ingests documents into a pgvector-backed store and answers
queries with depth-bounded recursive retrieval.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional, environment variables win
			_ = godotenv.Load()

			var err error
			config, err = LoadConfig(configPath)
			if err != nil {
				return err
			}
			return nil
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "recurve.yaml", "path to the yaml configuration")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(historyCmd)
}

// openRecurve connects to the database configured in the environment and
// sets up the chunking pipeline from the cli configuration
func openRecurve() (*recurve.Recurve, error) {
	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, err
	}

	retrieverConfig, err := config.RetrieverConfig()
	if err != nil {
		return nil, err
	}

	r, err := recurve.NewRecurve(dbConfig, retrieverConfig, config.EmbeddingDim)
	if err != nil {
		return nil, err
	}

	chunker, err := buildChunker(config.Chunker)
	if err != nil {
		r.Close()
		return nil, err
	}
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		r.Close()
		return nil, err
	}
	r.SetPipeline(pipeline.NewPipeline(chunker, embedder))

	return r, nil
}

func buildChunker(config ChunkerConfig) (pipeline.ChunkFunc, error) {
	switch config.Strategy {
	case "", "sentence":
		return pipeline.SentenceChunker(config.MaxSentences), nil
	case "paragraph":
		return pipeline.ParagraphChunker(), nil
	case "semantic":
		return pipeline.DefaultChunker(config.MaxChunkSize, config.Threshold), nil
	default:
		return nil, fmt.Errorf("unknown chunker strategy %q", config.Strategy)
	}
}
