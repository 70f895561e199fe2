package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Chunk represents one indexed unit of a document
type Chunk struct {
	ID          int       `json:"id"`
	DocumentID  int64     `json:"document_id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"embedding,omitempty"`
	StartPos    *int      `json:"start_pos,omitempty"`
	EndPos      *int      `json:"end_pos,omitempty"`
	ChunkIndex  *int      `json:"chunk_index,omitempty"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// Similarity is filled by similarity search results
	Similarity float64 `json:"similarity,omitempty"`
}

// ToCandidate converts a chunk returned by a similarity search into a
// retrieval candidate. The origin identifier combines the document RID and
// the chunk id so a candidate can be traced back to its stored unit.
func (c *Chunk) ToCandidate() *Candidate {
	origin := c.DocumentRID.String()
	if c.ChunkIndex != nil {
		origin = origin + "#" + strconv.Itoa(*c.ChunkIndex)
	}
	return &Candidate{
		Content:  c.Content,
		Origin:   origin,
		Score:    c.Similarity,
		Metadata: c.Metadata,
	}
}
