package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/recurve/helper"
)

// splitSentences splits text on sentence-ending punctuation
func splitSentences(text string) []string {
	text = strings.ReplaceAll(text, "! ", "!|")
	text = strings.ReplaceAll(text, "? ", "?|")
	text = strings.ReplaceAll(text, ". ", ".|")

	var sentences []string
	for _, s := range strings.Split(text, "|") {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// SentenceChunker creates a chunker that splits by sentences
func SentenceChunker(maxSentencesPerChunk int) ChunkFunc {
	return func(text string) ([]ChunkSpan, error) {
		if maxSentencesPerChunk <= 0 {
			return nil, fmt.Errorf("max sentences per chunk must be positive")
		}

		if strings.TrimSpace(text) == "" {
			return []ChunkSpan{}, nil
		}

		sentences := splitSentences(text)

		var chunks []ChunkSpan
		var currentChunk []string
		chunkIdx := 0
		pos := 0

		appendChunk := func() {
			content := strings.Join(currentChunk, " ")
			startPos := pos
			endPos := pos + len(content)
			idx := chunkIdx

			chunks = append(chunks, ChunkSpan{
				Content:    content,
				StartPos:   &startPos,
				EndPos:     &endPos,
				ChunkIndex: &idx,
				Metadata:   make(map[string]interface{}),
			})

			pos = endPos
			currentChunk = nil
			chunkIdx++
		}

		for _, sentence := range sentences {
			currentChunk = append(currentChunk, sentence)
			if len(currentChunk) >= maxSentencesPerChunk {
				appendChunk()
			}
		}

		if len(currentChunk) > 0 {
			appendChunk()
		}

		return chunks, nil
	}
}

// ParagraphChunker creates a chunker that splits by paragraphs
func ParagraphChunker() ChunkFunc {
	return func(text string) ([]ChunkSpan, error) {
		paragraphs := strings.Split(text, "\n\n")

		var chunks []ChunkSpan
		pos := 0
		chunkIdx := 0

		for _, para := range paragraphs {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}

			startPos := pos
			endPos := pos + len(para)
			idx := chunkIdx

			chunks = append(chunks, ChunkSpan{
				Content:    para,
				StartPos:   &startPos,
				EndPos:     &endPos,
				ChunkIndex: &idx,
				Metadata:   make(map[string]interface{}),
			})

			pos = endPos + 2 // Account for "\n\n"
			chunkIdx++
		}

		return chunks, nil
	}
}

// cosineSimilarity calculates the cosine similarity between two embedding vectors
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// DefaultChunker creates a semantic chunker that uses embeddings to identify natural boundaries.
// It analyzes semantic similarity between sentences and creates chunks at points where similarity drops.
func DefaultChunker(maxChunkSize int, similarityThreshold float32) ChunkFunc {
	return func(text string) ([]ChunkSpan, error) {
		modelName := "sentence-transformers/all-MiniLM-L6-v2"
		modelPath, err := helper.PrepareModel(modelName)
		if err != nil {
			return nil, err
		}

		session, err := hugot.NewGoSession()
		if err != nil {
			return nil, fmt.Errorf("failed to create hugot session: %w", err)
		}
		defer session.Destroy()

		config := hugot.FeatureExtractionConfig{
			ModelPath: modelPath,
			Name:      "semantic-chunker-pipeline",
		}
		sentencePipeline, err := hugot.NewPipeline(session, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
		}

		cleanSentences := splitSentences(text)
		if len(cleanSentences) == 0 {
			return nil, fmt.Errorf("no sentences found in text")
		}

		embeddingResult, err := sentencePipeline.RunPipeline(cleanSentences)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}

		embeddings := embeddingResult.Embeddings
		if len(embeddings) != len(cleanSentences) {
			return nil, fmt.Errorf("embedding count mismatch: got %d embeddings for %d sentences", len(embeddings), len(cleanSentences))
		}

		// Group sentences based on semantic similarity
		var chunks []ChunkSpan
		var currentChunk []string
		var currentEmbeddings [][]float32
		var currentLength int
		chunkIdx := 0
		pos := 0

		appendChunk := func() {
			content := strings.Join(currentChunk, " ")
			startPos := pos
			endPos := pos + len(content)
			idx := chunkIdx

			chunks = append(chunks, ChunkSpan{
				Content:    content,
				StartPos:   &startPos,
				EndPos:     &endPos,
				ChunkIndex: &idx,
				Metadata: map[string]interface{}{
					"embedding_model": modelName,
					"num_sentences":   len(currentChunk),
					"chunking_method": "semantic",
				},
			})

			pos = endPos
			currentChunk = nil
			currentEmbeddings = nil
			currentLength = 0
			chunkIdx++
		}

		for i, sentence := range cleanSentences {
			sentenceLen := len(sentence)
			shouldBreak := false

			if len(currentChunk) > 0 {
				// Average embedding of the current chunk
				avgEmbedding := make([]float32, len(currentEmbeddings[0]))
				for _, emb := range currentEmbeddings {
					for j := range emb {
						avgEmbedding[j] += emb[j]
					}
				}
				for j := range avgEmbedding {
					avgEmbedding[j] /= float32(len(currentEmbeddings))
				}

				similarity := cosineSimilarity(avgEmbedding, embeddings[i])
				if similarity < similarityThreshold || currentLength+sentenceLen > maxChunkSize {
					shouldBreak = true
				}
			}

			if shouldBreak {
				appendChunk()
			}

			currentChunk = append(currentChunk, sentence)
			currentEmbeddings = append(currentEmbeddings, embeddings[i])
			currentLength += sentenceLen
		}

		if len(currentChunk) > 0 {
			appendChunk()
		}

		return chunks, nil
	}
}
