package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock ChunkFunc for testing
func mockChunkFunc(text string) ([]ChunkSpan, error) {
	if text == "" {
		return nil, errors.New("empty text")
	}

	chunks := []ChunkSpan{
		{
			Content:    "Chunk 1",
			StartPos:   intPtrTest(0),
			EndPos:     intPtrTest(7),
			ChunkIndex: intPtrTest(0),
			Metadata:   map[string]interface{}{"index": 0},
		},
		{
			Content:    "Chunk 2",
			StartPos:   intPtrTest(8),
			EndPos:     intPtrTest(15),
			ChunkIndex: intPtrTest(1),
			Metadata:   map[string]interface{}{"index": 1},
		},
	}
	return chunks, nil
}

// Mock EmbedFunc for testing
func mockEmbedFunc(text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("empty text")
	}

	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

// Mock EmbedFunc that returns an error
func mockEmbedFuncError(text string) ([]float32, error) {
	return nil, errors.New("embedding error")
}

// Helper function
func intPtrTest(i int) *int {
	return &i
}

func TestNewPipeline(t *testing.T) {
	t.Run("Create new pipeline", func(t *testing.T) {
		pipeline := NewPipeline(mockChunkFunc, mockEmbedFunc)

		require.NotNil(t, pipeline, "Expected NewPipeline to return a non-nil instance")
		assert.NotNil(t, pipeline.Chunker, "Expected pipeline to have a chunker function")
		assert.NotNil(t, pipeline.Embedder, "Expected pipeline to have an embedder function")
	})

	t.Run("Create pipeline with nil functions", func(t *testing.T) {
		pipeline := NewPipeline(nil, nil)

		require.NotNil(t, pipeline, "Expected NewPipeline to return a non-nil instance")
		assert.Nil(t, pipeline.Chunker, "Expected chunker to be nil")
		assert.Nil(t, pipeline.Embedder, "Expected embedder to be nil")
	})
}

func TestPipelineProcess(t *testing.T) {
	t.Run("Process text successfully", func(t *testing.T) {
		pipeline := NewPipeline(mockChunkFunc, mockEmbedFunc)

		chunks, err := pipeline.Process("Test text")

		assert.NoError(t, err, "Expected Process to not return an error")
		require.Len(t, chunks, 2, "Expected 2 chunks")

		assert.Equal(t, "Chunk 1", chunks[0].Content, "Expected correct content")
		assert.NotNil(t, chunks[0].Embedding, "Expected embedding to be set")
		assert.Len(t, chunks[0].Embedding, 4, "Expected embedding to have 4 dimensions")
		assert.Equal(t, intPtrTest(0), chunks[0].StartPos, "Expected correct start position")
		assert.Equal(t, intPtrTest(7), chunks[0].EndPos, "Expected correct end position")
		assert.NotNil(t, chunks[0].Metadata, "Expected metadata to be set")

		assert.Equal(t, "Chunk 2", chunks[1].Content, "Expected correct content")
		assert.NotNil(t, chunks[1].Embedding, "Expected embedding to be set")
	})

	t.Run("Process with empty text", func(t *testing.T) {
		pipeline := NewPipeline(mockChunkFunc, mockEmbedFunc)

		_, err := pipeline.Process("")

		assert.Error(t, err, "Expected Process to return an error for empty text")
	})

	t.Run("Process with failing embedder", func(t *testing.T) {
		pipeline := NewPipeline(mockChunkFunc, mockEmbedFuncError)

		_, err := pipeline.Process("Test text")

		assert.Error(t, err, "Expected Process to return the embedder error")
		assert.Contains(t, err.Error(), "embedding error")
	})

	t.Run("Processed chunks carry no document reference", func(t *testing.T) {
		pipeline := NewPipeline(mockChunkFunc, mockEmbedFunc)

		chunks, err := pipeline.Process("Test text")

		require.NoError(t, err)
		for _, chunk := range chunks {
			assert.Zero(t, chunk.DocumentID, "Expected document ID to be unset until insert")
		}
	})
}
