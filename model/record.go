package model

import (
	"time"

	"github.com/google/uuid"
)

// RetrievalRecord represents one persisted retrieval call for history and tuning
type RetrievalRecord struct {
	ID        int64     `json:"id"`
	RID       uuid.UUID `json:"rid"`
	Query     string    `json:"query"`
	Topic     string    `json:"topic,omitempty"`
	DepthUsed int       `json:"depth_used"`
	// TotalResults counts candidates seen across all branches
	TotalResults int `json:"total_results"`
	// FinalResults counts candidates returned to the caller
	FinalResults int `json:"final_results"`
	// ExecutionMs is the wall-clock duration of the call in milliseconds
	ExecutionMs int64 `json:"execution_ms"`
	Partial     bool  `json:"partial"`
	// Report holds the serialized retrieval report for later inspection
	Report    Metadata  `json:"report,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRetrievalRecord builds a record from a finished report
func NewRetrievalRecord(query string, topic string, report *Report) *RetrievalRecord {
	record := &RetrievalRecord{
		Query: query,
		Topic: topic,
	}
	if report == nil {
		return record
	}
	record.DepthUsed = report.RecursionDepthUsed
	record.TotalResults = report.TotalResults
	record.FinalResults = report.FinalResults
	record.ExecutionMs = report.ExecutionTime.Milliseconds()
	record.Partial = report.Partial
	record.Report = Metadata{
		"recursion_depth_used": report.RecursionDepthUsed,
		"total_results":        report.TotalResults,
		"final_results":        report.FinalResults,
		"execution_time":       report.ExecutionTime.String(),
		"partial":              report.Partial,
		"sub_query_fallbacks":  report.SubQueryFallbacks,
		"rerank_fallback":      report.RerankFallback,
	}
	if report.Tree != nil {
		record.Report["retrieval_tree"] = report.Tree
	}
	return record
}
