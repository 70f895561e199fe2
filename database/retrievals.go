package database

import (
	"context"
	gosql "database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/recurve/helper"
	"github.com/siherrmann/recurve/model"
	"github.com/siherrmann/recurve/sql"
)

// RetrievalsDBHandlerFunctions defines the interface for retrieval-history
// database operations.
type RetrievalsDBHandlerFunctions interface {
	InsertRetrieval(record *model.RetrievalRecord) error
	SelectRetrieval(rid uuid.UUID) (*model.RetrievalRecord, error)
	SelectRecentRetrievals(limit int) ([]*model.RetrievalRecord, error)
	SelectRetrievalsByQuery(searchTerm string, limit int) ([]*model.RetrievalRecord, error)
	DeleteRetrieval(rid uuid.UUID) error
}

// RetrievalsDBHandler persists finished retrieval calls for history and tuning
type RetrievalsDBHandler struct {
	db *helper.Database
}

// NewRetrievalsDBHandler creates a new retrieval-history database handler.
// It initializes the database connection and loads the SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewRetrievalsDBHandler(db *helper.Database, force bool) (*RetrievalsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	retrievalsDbHandler := &RetrievalsDBHandler{
		db: db,
	}

	err := sql.LoadRetrievalsSql(retrievalsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load retrievals sql", err)
	}

	err = retrievalsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized RetrievalsDBHandler")

	return retrievalsDbHandler, nil
}

// CreateTable creates the 'retrievals' table in the database.
// If the table already exists, it does not create it again.
func (h *RetrievalsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_retrievals();`)
	if err != nil {
		log.Panicf("error initializing retrievals table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table retrievals")

	return nil
}

// InsertRetrieval inserts a new retrieval record
func (h *RetrievalsDBHandler) InsertRetrieval(record *model.RetrievalRecord) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_retrieval($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.Query,
		record.Topic,
		record.DepthUsed,
		record.TotalResults,
		record.FinalResults,
		record.ExecutionMs,
		record.Partial,
		record.Report,
	)

	err := row.Scan(
		&record.ID,
		&record.RID,
		&record.Query,
		&record.Topic,
		&record.DepthUsed,
		&record.TotalResults,
		&record.FinalResults,
		&record.ExecutionMs,
		&record.Partial,
		&record.Report,
		&record.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectRetrieval retrieves a record by RID
func (h *RetrievalsDBHandler) SelectRetrieval(rid uuid.UUID) (*model.RetrievalRecord, error) {
	record := &model.RetrievalRecord{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_retrieval($1)`,
		rid,
	)

	err := row.Scan(
		&record.ID,
		&record.RID,
		&record.Query,
		&record.Topic,
		&record.DepthUsed,
		&record.TotalResults,
		&record.FinalResults,
		&record.ExecutionMs,
		&record.Partial,
		&record.Report,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return record, nil
}

// SelectRecentRetrievals retrieves the newest records first
func (h *RetrievalsDBHandler) SelectRecentRetrievals(limit int) ([]*model.RetrievalRecord, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_recent_retrievals($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanRetrievals(rows)
}

// SelectRetrievalsByQuery retrieves records whose query matches the search term
func (h *RetrievalsDBHandler) SelectRetrievalsByQuery(searchTerm string, limit int) ([]*model.RetrievalRecord, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_retrievals_by_query($1, $2)`,
		searchTerm,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanRetrievals(rows)
}

// DeleteRetrieval deletes a record by RID
func (h *RetrievalsDBHandler) DeleteRetrieval(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_retrieval($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func scanRetrievals(rows *gosql.Rows) ([]*model.RetrievalRecord, error) {
	var records []*model.RetrievalRecord
	for rows.Next() {
		record := &model.RetrievalRecord{}
		err := rows.Scan(
			&record.ID,
			&record.RID,
			&record.Query,
			&record.Topic,
			&record.DepthUsed,
			&record.TotalResults,
			&record.FinalResults,
			&record.ExecutionMs,
			&record.Partial,
			&record.Report,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		records = append(records, record)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return records, nil
}
