package model

// Candidate represents one retrieved text unit with its retrieval metadata
type Candidate struct {
	Content string  `json:"content"`
	Origin  string  `json:"origin"`
	Score   float64 `json:"score"`
	// RetrievalDepth is the recursion level at which the candidate was found (root is 1)
	RetrievalDepth int `json:"retrieval_depth"`
	// RetrievalPath is the ordered list of queries that led to the candidate, root first
	RetrievalPath []string `json:"retrieval_path,omitempty"`
	Metadata      Metadata `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the candidate
func (c *Candidate) Clone() *Candidate {
	clone := *c
	if c.RetrievalPath != nil {
		clone.RetrievalPath = make([]string, len(c.RetrievalPath))
		copy(clone.RetrievalPath, c.RetrievalPath)
	}
	if c.Metadata != nil {
		clone.Metadata = make(Metadata, len(c.Metadata))
		for k, v := range c.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// CloneCandidates returns a deep copy of a candidate slice
func CloneCandidates(candidates []*Candidate) []*Candidate {
	clones := make([]*Candidate, len(candidates))
	for i, c := range candidates {
		clones[i] = c.Clone()
	}
	return clones
}
