package recurve

import (
	"context"
	"strings"
	"testing"

	"github.com/siherrmann/recurve/core/pipeline"
	"github.com/siherrmann/recurve/core/retrieval"
	"github.com/siherrmann/recurve/helper"
	"github.com/siherrmann/recurve/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

// testEmbedder creates a deterministic embedder whose vectors move closer
// the more words two texts share
func testEmbedder(dimension int) pipeline.EmbedFunc {
	return func(text string) ([]float32, error) {
		embedding := make([]float32, dimension)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			bucket := 0
			for _, r := range word {
				bucket += int(r)
			}
			embedding[bucket%dimension] += 1
		}

		var norm float32
		for _, v := range embedding {
			norm += v * v
		}
		if norm > 0 {
			for i := range embedding {
				embedding[i] /= float32(norm)
			}
		}
		return embedding, nil
	}
}

func initRecurve(t *testing.T, config model.RetrieverConfig) *Recurve {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")

	r, err := NewRecurve(dbConfig, config, testDim)
	require.NoError(t, err, "failed to create recurve")
	require.NotNil(t, r, "expected recurve to be non-nil")

	r.SetPipeline(pipeline.NewPipeline(pipeline.SentenceChunker(2), testEmbedder(testDim)))

	t.Cleanup(func() {
		r.Close()
	})

	return r
}

func TestNewRecurve(t *testing.T) {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err)

	t.Run("Valid call NewRecurve", func(t *testing.T) {
		r, err := NewRecurve(dbConfig, model.DefaultRetrieverConfig(), testDim)
		require.NoError(t, err, "Expected NewRecurve to not return an error")
		require.NotNil(t, r, "Expected NewRecurve to return a non-nil instance")
		assert.NotNil(t, r.DB, "Expected recurve to have a database instance")
		assert.NotNil(t, r.Chunks, "Expected recurve to have chunks handler")
		assert.NotNil(t, r.Documents, "Expected recurve to have documents handler")
		assert.NotNil(t, r.Retrievals, "Expected recurve to have retrievals handler")
		assert.NotNil(t, r.Retriever, "Expected recurve to have a retriever")
		assert.Nil(t, r.Pipeline, "Expected pipeline to be nil initially")

		err = r.Close()
		assert.NoError(t, err, "Expected Close to not return an error")
	})

	t.Run("Invalid retriever configuration", func(t *testing.T) {
		config := model.DefaultRetrieverConfig()
		config.MaxRecursionDepth = 9

		_, err := NewRecurve(dbConfig, config, testDim)
		assert.Error(t, err, "Expected NewRecurve to reject an invalid configuration")
	})

	t.Run("Recurve with nil database handles Close gracefully", func(t *testing.T) {
		r := &Recurve{}

		err := r.Close()
		assert.NoError(t, err, "Expected Close to handle nil DB gracefully")
	})
}

func TestSetPipeline(t *testing.T) {
	r := initRecurve(t, model.DefaultRetrieverConfig())

	t.Run("Set pipeline successfully", func(t *testing.T) {
		p := pipeline.NewPipeline(pipeline.SentenceChunker(5), testEmbedder(testDim))

		r.SetPipeline(p)

		assert.NotNil(t, r.Pipeline, "Expected pipeline to be set")
		assert.Equal(t, p, r.Pipeline, "Expected pipeline to match")
	})

	t.Run("Set pipeline to nil", func(t *testing.T) {
		r.SetPipeline(nil)

		assert.Nil(t, r.Pipeline, "Expected pipeline to be nil")

		_, _, err := r.Retrieve(context.Background(), "any query", nil)
		assert.Error(t, err, "Expected Retrieve to fail without a pipeline")
		assert.Contains(t, err.Error(), "pipeline with embedder not set")
	})
}

func TestProcessAndInsertDocument(t *testing.T) {
	r := initRecurve(t, model.DefaultRetrieverConfig())

	t.Run("Process and insert document", func(t *testing.T) {
		doc := &model.Document{
			Title:   "Vacuum Guide",
			Topic:   "postgres",
			Content: "Vacuum reclaims dead tuples. Autovacuum runs in the background. Tuning thresholds matters for busy tables. Bloat grows without it.",
		}

		numChunks, err := r.ProcessAndInsertDocument(doc)
		assert.NoError(t, err, "Expected ProcessAndInsertDocument to not return an error")
		assert.Greater(t, numChunks, 0, "Expected at least one chunk to be inserted")
		assert.NotZero(t, doc.ID, "Expected document to have an ID after insert")
		assert.Empty(t, doc.Content, "Expected content to be cleared before insert")

		chunks, err := r.Chunks.SelectChunksByDocument(doc.RID)
		assert.NoError(t, err)
		assert.Len(t, chunks, numChunks)
	})

	t.Run("Empty content", func(t *testing.T) {
		doc := &model.Document{Title: "Empty", Topic: "postgres"}

		_, err := r.ProcessAndInsertDocument(doc)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "document content is empty")
	})

	t.Run("Missing pipeline", func(t *testing.T) {
		r.SetPipeline(nil)
		t.Cleanup(func() {
			r.SetPipeline(pipeline.NewPipeline(pipeline.SentenceChunker(2), testEmbedder(testDim)))
		})

		doc := &model.Document{Title: "No Pipeline", Topic: "postgres", Content: "Some content."}

		_, err := r.ProcessAndInsertDocument(doc)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline not set")
	})
}

func TestRecurveRetrieve(t *testing.T) {
	r := initRecurve(t, model.DefaultRetrieverConfig())

	doc := &model.Document{
		Title:   "Kafka Operations",
		Topic:   "kafka-retrieve",
		Content: "Consumer groups balance partitions across members. Rebalancing pauses consumption briefly. Offsets track consumption progress per partition. Lag indicates consumers falling behind.",
	}
	_, err := r.ProcessAndInsertDocument(doc)
	require.NoError(t, err)

	t.Run("Retrieve returns stored content", func(t *testing.T) {
		candidates, report, err := r.Retrieve(context.Background(), "consumer groups balance partitions", &retrieval.Options{
			Topic:        "kafka-retrieve",
			ReturnReport: true,
		})

		assert.NoError(t, err)
		require.NotEmpty(t, candidates, "Expected candidates from the stored document")
		require.NotNil(t, report)
		assert.GreaterOrEqual(t, report.RecursionDepthUsed, 1)
		assert.Equal(t, len(candidates), report.FinalResults)
	})

	t.Run("Report omitted by default", func(t *testing.T) {
		_, report, err := r.Retrieve(context.Background(), "offsets track progress", &retrieval.Options{Topic: "kafka-retrieve"})

		assert.NoError(t, err)
		assert.Nil(t, report, "Expected no report without ReturnReport")
	})

	t.Run("Empty query errors", func(t *testing.T) {
		_, _, err := r.Retrieve(context.Background(), "   ", nil)
		assert.Error(t, err)
	})
}

func TestRetrieveAndRecord(t *testing.T) {
	r := initRecurve(t, model.DefaultRetrieverConfig())

	doc := &model.Document{
		Title:   "TLS Basics",
		Topic:   "tls-record",
		Content: "Certificates bind a public key to an identity. Handshakes negotiate cipher suites. Session resumption avoids repeated handshakes. Expiry requires rotation.",
	}
	_, err := r.ProcessAndInsertDocument(doc)
	require.NoError(t, err)

	t.Run("Record persists the call", func(t *testing.T) {
		candidates, record, err := r.RetrieveAndRecord(context.Background(), "certificates bind a public key", &retrieval.Options{
			Topic: "tls-record",
		})

		assert.NoError(t, err)
		assert.NotEmpty(t, candidates)
		require.NotNil(t, record)
		assert.NotZero(t, record.ID, "Expected record to be stored")
		assert.Equal(t, "certificates bind a public key", record.Query)
		assert.Equal(t, "tls-record", record.Topic)
		assert.Equal(t, len(candidates), record.FinalResults)

		stored, err := r.Retrievals.SelectRetrieval(record.RID)
		assert.NoError(t, err)
		assert.Equal(t, record.Query, stored.Query)
	})
}

func TestRecurveChangeIndexType(t *testing.T) {
	r := initRecurve(t, model.DefaultRetrieverConfig())

	err := r.ChangeIndexType(context.Background(), "hnsw", map[string]interface{}{"m": 8, "ef_construction": 32})
	assert.NoError(t, err)
}
