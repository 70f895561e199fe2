package model

import (
	"fmt"
)

// RerankMethod selects the similarity strategy used for final reranking
type RerankMethod string

const (
	RerankMethodCosine       RerankMethod = "cosine"
	RerankMethodCrossEncoder RerankMethod = "cross_encoder"
	RerankMethodBM25         RerankMethod = "bm25"
)

// RetrieverConfig represents the full set of tunables for a recursive retrieval run.
// A config is validated once at retriever construction and never mutated mid-retrieval.
type RetrieverConfig struct {
	// EnableRecursion disables sub-query expansion entirely when false (depth fixed at 1)
	EnableRecursion bool `json:"enable_recursion" yaml:"enable_recursion"`
	// MaxRecursionDepth is the hard ceiling on tree depth, 1 to 4
	MaxRecursionDepth int `json:"max_recursion_depth" yaml:"max_recursion_depth"`

	// InitialK is the number of candidates requested at the root query
	InitialK int `json:"initial_k" yaml:"initial_k"`
	// IntermediateK is the number of candidates requested at internal depths
	IntermediateK int `json:"intermediate_k" yaml:"intermediate_k"`
	// FinalK is the number of candidates returned after merge and rerank
	FinalK int `json:"final_k" yaml:"final_k"`

	// MinConfidenceScore stops recursion for a branch whose average score reaches it
	MinConfidenceScore float64 `json:"min_confidence_score" yaml:"min_confidence_score"`
	// MinResultQuality marks a branch as failed in the report when its average score is below it
	MinResultQuality float64 `json:"min_result_quality" yaml:"min_result_quality"`

	// GenerateSubQuestions controls whether under-confident nodes spawn child queries
	GenerateSubQuestions bool `json:"generate_sub_questions" yaml:"generate_sub_questions"`
	// NumSubQuestions is the maximum fan-out per under-confident node
	NumSubQuestions int `json:"num_sub_questions" yaml:"num_sub_questions"`

	// EnableReranking reorders the merged pool against the root query when true
	EnableReranking bool         `json:"enable_reranking" yaml:"enable_reranking"`
	RerankMethod    RerankMethod `json:"rerank_method" yaml:"rerank_method"`

	// DeduplicationThreshold merges two candidates whose textual similarity reaches it
	DeduplicationThreshold float64 `json:"deduplication_threshold" yaml:"deduplication_threshold"`

	// MaxQueryAttempts bounds the total number of vector store lookups per retrieval call
	MaxQueryAttempts int `json:"max_query_attempts" yaml:"max_query_attempts"`
	// MaxTotalDocuments bounds the total number of candidates collected per retrieval call
	MaxTotalDocuments int `json:"max_total_documents" yaml:"max_total_documents"`
}

// DefaultRetrieverConfig returns the balanced preset
func DefaultRetrieverConfig() RetrieverConfig {
	return BalancedConfig()
}

// LightConfig returns a shallow, low fan-out preset for latency-sensitive callers
func LightConfig() RetrieverConfig {
	return RetrieverConfig{
		EnableRecursion:        true,
		MaxRecursionDepth:      2,
		InitialK:               5,
		IntermediateK:          3,
		FinalK:                 3,
		MinConfidenceScore:     0.5,
		MinResultQuality:       0.5,
		GenerateSubQuestions:   true,
		NumSubQuestions:        1,
		EnableReranking:        true,
		RerankMethod:           RerankMethodCosine,
		DeduplicationThreshold: 0.85,
		MaxQueryAttempts:       10,
		MaxTotalDocuments:      50,
	}
}

// BalancedConfig returns the recommended default preset
func BalancedConfig() RetrieverConfig {
	return RetrieverConfig{
		EnableRecursion:        true,
		MaxRecursionDepth:      3,
		InitialK:               10,
		IntermediateK:          5,
		FinalK:                 5,
		MinConfidenceScore:     0.6,
		MinResultQuality:       0.5,
		GenerateSubQuestions:   true,
		NumSubQuestions:        2,
		EnableReranking:        true,
		RerankMethod:           RerankMethodCosine,
		DeduplicationThreshold: 0.85,
		MaxQueryAttempts:       20,
		MaxTotalDocuments:      100,
	}
}

// DeepConfig returns a deep, high fan-out preset for complex questions
func DeepConfig() RetrieverConfig {
	return RetrieverConfig{
		EnableRecursion:        true,
		MaxRecursionDepth:      4,
		InitialK:               15,
		IntermediateK:          8,
		FinalK:                 5,
		MinConfidenceScore:     0.7,
		MinResultQuality:       0.5,
		GenerateSubQuestions:   true,
		NumSubQuestions:        3,
		EnableReranking:        true,
		RerankMethod:           RerankMethodCosine,
		DeduplicationThreshold: 0.85,
		MaxQueryAttempts:       40,
		MaxTotalDocuments:      200,
	}
}

// SingleLayerConfig returns a preset that performs only the initial lookup
func SingleLayerConfig() RetrieverConfig {
	config := BalancedConfig()
	config.EnableRecursion = false
	config.MaxRecursionDepth = 1
	config.InitialK = 5
	return config
}

// Validate checks every field against its allowed range.
// It returns an error naming the first violating field, so retriever
// construction can fail fast before any retrieval work starts.
func (c *RetrieverConfig) Validate() error {
	if c.MaxRecursionDepth < 1 || c.MaxRecursionDepth > 4 {
		return fmt.Errorf("max_recursion_depth must be in range 1..4, got %d", c.MaxRecursionDepth)
	}
	if c.InitialK < 1 {
		return fmt.Errorf("initial_k must be >= 1, got %d", c.InitialK)
	}
	if c.IntermediateK < 1 {
		return fmt.Errorf("intermediate_k must be >= 1, got %d", c.IntermediateK)
	}
	if c.FinalK < 1 {
		return fmt.Errorf("final_k must be >= 1, got %d", c.FinalK)
	}
	if c.MinConfidenceScore < 0 || c.MinConfidenceScore > 1 {
		return fmt.Errorf("min_confidence_score must be in range [0,1], got %v", c.MinConfidenceScore)
	}
	if c.MinResultQuality < 0 || c.MinResultQuality > 1 {
		return fmt.Errorf("min_result_quality must be in range [0,1], got %v", c.MinResultQuality)
	}
	if c.NumSubQuestions < 0 {
		return fmt.Errorf("num_sub_questions must be >= 0, got %d", c.NumSubQuestions)
	}
	switch c.RerankMethod {
	case RerankMethodCosine, RerankMethodCrossEncoder, RerankMethodBM25:
	default:
		return fmt.Errorf("rerank_method must be one of cosine, cross_encoder, bm25, got %q", c.RerankMethod)
	}
	if c.DeduplicationThreshold < 0 || c.DeduplicationThreshold > 1 {
		return fmt.Errorf("deduplication_threshold must be in range [0,1], got %v", c.DeduplicationThreshold)
	}
	if c.MaxQueryAttempts < 1 {
		return fmt.Errorf("max_query_attempts must be >= 1, got %d", c.MaxQueryAttempts)
	}
	if c.MaxTotalDocuments < 1 {
		return fmt.Errorf("max_total_documents must be >= 1, got %d", c.MaxTotalDocuments)
	}
	return nil
}

// Signature returns a stable string identifying the config for cache keying.
// Two configs with equal field values always produce the same signature.
func (c *RetrieverConfig) Signature() string {
	return fmt.Sprintf(
		"rec=%t|depth=%d|ik=%d|mk=%d|fk=%d|conf=%g|qual=%g|sub=%t|nsub=%d|rr=%t|method=%s|dedup=%g|maxq=%d|maxd=%d",
		c.EnableRecursion,
		c.MaxRecursionDepth,
		c.InitialK,
		c.IntermediateK,
		c.FinalK,
		c.MinConfidenceScore,
		c.MinResultQuality,
		c.GenerateSubQuestions,
		c.NumSubQuestions,
		c.EnableReranking,
		c.RerankMethod,
		c.DeduplicationThreshold,
		c.MaxQueryAttempts,
		c.MaxTotalDocuments,
	)
}
