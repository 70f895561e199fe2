package recurve

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/siherrmann/recurve/core/pipeline"
	"github.com/siherrmann/recurve/core/retrieval"
	"github.com/siherrmann/recurve/core/subquery"
	"github.com/siherrmann/recurve/database"
	"github.com/siherrmann/recurve/helper"
	"github.com/siherrmann/recurve/model"
	loadSql "github.com/siherrmann/recurve/sql"
)

// Recurve provides a unified interface to the stored corpus and the
// recursive retriever
type Recurve struct {
	DB         *helper.Database
	Chunks     *database.ChunksDBHandler
	Documents  *database.DocumentsDBHandler
	Retrievals *database.RetrievalsDBHandler
	Pipeline   *pipeline.Pipeline // Optional chunking pipeline
	Retriever  *retrieval.Retriever
	// Logging
	log *slog.Logger
}

// NewRecurve creates a new Recurve instance with all handlers initialized.
// The retriever searches the stored chunks through the pipeline's embedder,
// so a pipeline must be set before calling Retrieve.
func NewRecurve(config *helper.DatabaseConfiguration, retrieverConfig model.RetrieverConfig, embeddingDim int) (*Recurve, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("recurve", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (documents first, then chunks)
	// force=false to not reload if functions already exist
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := database.NewChunksDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	retrievals, err := database.NewRetrievalsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create retrievals handler", err)
	}

	recurve := &Recurve{
		DB:         db,
		Chunks:     chunks,
		Documents:  documents,
		Retrievals: retrievals,
		log:        logger,
	}

	retriever, err := retrieval.NewRetriever(retrieverConfig, retrieval.Dependencies{
		Searcher: &storeSearcher{recurve: recurve},
		Cache:    retrieval.NewCache(retrieval.DefaultCacheCapacity),
		Logger:   logger,
	})
	if err != nil {
		return nil, helper.NewError("create retriever", err)
	}
	recurve.Retriever = retriever

	return recurve, nil
}

// Close closes the database connection
func (r *Recurve) Close() error {
	if r.DB != nil && r.DB.Instance != nil {
		return r.DB.Instance.Close()
	}
	return nil
}

// SetPipeline sets the chunking pipeline for document processing
func (r *Recurve) SetPipeline(pipeline *pipeline.Pipeline) {
	r.Pipeline = pipeline
}

// UseDefaultPipeline sets up the default semantic chunking and embedding pipeline.
// This uses DefaultChunker with 500 char max chunks and 0.7 similarity threshold,
// and DefaultEmbedder with the all-MiniLM-L6-v2 model (384 dimensions).
func (r *Recurve) UseDefaultPipeline() error {
	chunker := pipeline.DefaultChunker(500, 0.7)
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	r.Pipeline = pipeline.NewPipeline(chunker, embedder)
	return nil
}

// UseModelBackedSubQueries rebuilds the retriever so sub-queries come from
// the given completer, falling back to the heuristic strategy when it fails
func (r *Recurve) UseModelBackedSubQueries(completer subquery.Completer) error {
	generator, err := subquery.NewModelBacked(completer)
	if err != nil {
		return helper.NewError("create model backed generator", err)
	}

	retriever, err := retrieval.NewRetriever(r.Retriever.Config(), retrieval.Dependencies{
		Searcher:   &storeSearcher{recurve: r},
		SubQueries: subquery.NewChain(generator, r.log),
		Cache:      retrieval.NewCache(retrieval.DefaultCacheCapacity),
		Logger:     r.log,
	})
	if err != nil {
		return helper.NewError("create retriever", err)
	}

	r.Retriever = retriever
	return nil
}

// ProcessAndInsertDocument processes a document by:
// 1. Inserting the document metadata (without content)
// 2. Processing the content into chunks using the pipeline
// 3. Inserting all chunks with the document ID
// The document's Content field is used for processing but not stored in the database.
// Returns the number of chunks inserted and any error encountered.
func (r *Recurve) ProcessAndInsertDocument(doc *model.Document) (int, error) {
	if r.Pipeline == nil {
		return 0, helper.NewError("process document", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}

	if doc.Content == "" {
		return 0, helper.NewError("process document", fmt.Errorf("document content is empty"))
	}

	// Store content temporarily and clear it before DB insert
	content := doc.Content
	doc.Content = ""

	// Insert document metadata
	if err := r.Documents.InsertDocument(doc); err != nil {
		return 0, helper.NewError("insert document", err)
	}

	r.log.Info("Inserted document", slog.String("document_id", doc.RID.String()), slog.String("title", doc.Title))

	// Process content into chunks
	chunks, err := r.Pipeline.Process(content)
	if err != nil {
		return 0, helper.NewError("process chunks", err)
	}

	r.log.Info("Processed document into chunks", slog.Int("num_chunks", len(chunks)), slog.String("document_id", doc.RID.String()))

	// Insert all chunks
	for i, chunk := range chunks {
		chunk.DocumentID = doc.ID
		if err := r.Chunks.InsertChunk(chunk); err != nil {
			return i, helper.NewError(fmt.Sprintf("insert chunk %d", i), err)
		}
	}

	return len(chunks), nil
}

// Retrieve runs the recursive retriever over the stored corpus
func (r *Recurve) Retrieve(ctx context.Context, query string, options *retrieval.Options) ([]*model.Candidate, *model.Report, error) {
	if r.Pipeline == nil || r.Pipeline.Embedder == nil {
		return nil, nil, helper.NewError("retrieve", fmt.Errorf("pipeline with embedder not set, use SetPipeline() first"))
	}

	return r.Retriever.Retrieve(ctx, query, options)
}

// RetrieveAndRecord runs the recursive retriever and persists a record of the
// call for later inspection. The record is stored even when the call was
// cancelled mid-expansion, marked partial.
func (r *Recurve) RetrieveAndRecord(ctx context.Context, query string, options *retrieval.Options) ([]*model.Candidate, *model.RetrievalRecord, error) {
	withReport := retrieval.Options{ReturnReport: true}
	if options != nil {
		withReport = *options
		withReport.ReturnReport = true
	}

	candidates, report, err := r.Retrieve(ctx, query, &withReport)
	if err != nil {
		return nil, nil, err
	}

	record := model.NewRetrievalRecord(query, withReport.Topic, report)
	if err := r.Retrievals.InsertRetrieval(record); err != nil {
		return candidates, nil, helper.NewError("insert retrieval record", err)
	}

	r.log.Info("Recorded retrieval",
		slog.String("retrieval_id", record.RID.String()),
		slog.Int("final_results", record.FinalResults),
		slog.Bool("partial", record.Partial),
	)

	return candidates, record, nil
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
func (r *Recurve) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return r.Chunks.ChangeIndexType(ctx, indexType, params)
}

// storeSearcher adapts the chunk store to the retriever's lookup interface.
// Each query is embedded with the configured pipeline and matched against the
// stored chunk embeddings.
type storeSearcher struct {
	recurve *Recurve
}

func (s *storeSearcher) Search(ctx context.Context, query string, k int, topic string) ([]*model.Candidate, error) {
	if s.recurve.Pipeline == nil || s.recurve.Pipeline.Embedder == nil {
		return nil, fmt.Errorf("pipeline with embedder not set")
	}

	embedding, err := s.recurve.Pipeline.Embedder(query)
	if err != nil {
		return nil, helper.NewError("generate embedding", err)
	}

	chunks, err := s.recurve.Chunks.SelectChunksBySimilarity(embedding, k, 0.0, topic)
	if err != nil {
		return nil, helper.NewError("similarity search", err)
	}

	candidates := make([]*model.Candidate, 0, len(chunks))
	for _, chunk := range chunks {
		candidates = append(candidates, chunk.ToCandidate())
	}
	return candidates, nil
}
