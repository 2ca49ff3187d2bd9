package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	loadSql "github.com/siherrmann/memoria/sql"
)

// EmbeddingsDBHandlerFunctions defines the interface for stored entry vectors.
type EmbeddingsDBHandlerFunctions interface {
	UpsertEmbedding(ctx context.Context, embedding *model.StoredEmbedding) error
	SelectEmbedding(ctx context.Context, entryType model.EntryType, id string) (*model.StoredEmbedding, error)
	SelectEmbeddings(ctx context.Context, filter model.EntryFilter) ([]*model.StoredEmbedding, error)
	DeleteEmbedding(ctx context.Context, entryType model.EntryType, id string) error
}

// EmbeddingsDBHandler handles entry embedding operations
type EmbeddingsDBHandler struct {
	db *helper.Database
}

// NewEmbeddingsDBHandler creates a new embeddings database handler.
// If force is true, the embeddings schema is executed even if the table
// already exists.
func NewEmbeddingsDBHandler(db *helper.Database, force bool) (*EmbeddingsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	// Scoped listings join the entries table.
	err := loadSql.LoadEntriesSql(db.Instance, db.Driver, false)
	if err != nil {
		return nil, helper.NewError("load entries sql", err)
	}

	err = loadSql.LoadEmbeddingsSql(db.Instance, db.Driver, force)
	if err != nil {
		return nil, helper.NewError("load embeddings sql", err)
	}

	db.Logger.Info("Initialized EmbeddingsDBHandler")

	return &EmbeddingsDBHandler{db: db}, nil
}

// UpsertEmbedding stores the vector of an entry, replacing any previous one.
func (h *EmbeddingsDBHandler) UpsertEmbedding(ctx context.Context, embedding *model.StoredEmbedding) error {
	if !embedding.EntryType.Valid() || embedding.EntryID == "" {
		return helper.Errorf(helper.ErrInvalidInput, "embedding needs an entry type and id")
	}
	if len(embedding.Vector) == 0 {
		return helper.Errorf(helper.ErrInvalidInput, "embedding vector is empty")
	}
	embedding.Dimension = len(embedding.Vector)

	_, err := h.db.Instance.ExecContext(ctx, h.db.Rebind(`
		INSERT INTO entry_embeddings (entry_type, entry_id, embedding, dimension, model, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (entry_type, entry_id) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			model = excluded.model,
			updated_at = excluded.updated_at`),
		string(embedding.EntryType),
		embedding.EntryID,
		pgvector.NewVector(embedding.Vector),
		embedding.Dimension,
		embedding.Model,
		toMillis(time.Now()),
	)
	if err != nil {
		return helper.NewError("upsert embedding", err)
	}

	return nil
}

// SelectEmbedding returns the stored vector of an entry, or nil if the
// entry has none.
func (h *EmbeddingsDBHandler) SelectEmbedding(ctx context.Context, entryType model.EntryType, id string) (*model.StoredEmbedding, error) {
	row := h.db.Instance.QueryRowContext(ctx, h.db.Rebind(
		`SELECT entry_type, entry_id, embedding, dimension, model FROM entry_embeddings WHERE entry_type = ? AND entry_id = ?`),
		string(entryType), id,
	)

	embedding, err := scanEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return embedding, nil
}

// SelectEmbeddings lists the stored vectors of entries passing filter.
// Without scope, activity or tag conditions vectors are listed by type
// alone, even if their entry is missing. Limit and offset are ignored.
func (h *EmbeddingsDBHandler) SelectEmbeddings(ctx context.Context, filter model.EntryFilter) ([]*model.StoredEmbedding, error) {
	query := `SELECT v.entry_type, v.entry_id, v.embedding, v.dimension, v.model FROM entry_embeddings v`
	if filter.JoinsEntries() {
		query += ` JOIN entries e ON e.id = v.entry_id AND e.entry_type = v.entry_type`
	}
	where, args := entryConditions(filter, `v.entry_type`)
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY v.entry_type, v.entry_id`

	rows, err := h.db.Instance.QueryContext(ctx, h.db.Rebind(query), args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	embeddings := []*model.StoredEmbedding{}
	for rows.Next() {
		embedding, err := scanEmbedding(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		embeddings = append(embeddings, embedding)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return embeddings, nil
}

// DeleteEmbedding removes the vector of an entry. Missing vectors are ignored.
func (h *EmbeddingsDBHandler) DeleteEmbedding(ctx context.Context, entryType model.EntryType, id string) error {
	_, err := h.db.Instance.ExecContext(ctx, h.db.Rebind(
		`DELETE FROM entry_embeddings WHERE entry_type = ? AND entry_id = ?`),
		string(entryType), id,
	)
	if err != nil {
		return helper.NewError("delete embedding", err)
	}

	return nil
}

func scanEmbedding(row rowScanner) (*model.StoredEmbedding, error) {
	embedding := &model.StoredEmbedding{}
	var entryType string
	var vector pgvector.Vector

	err := row.Scan(&entryType, &embedding.EntryID, &vector, &embedding.Dimension, &embedding.Model)
	if err != nil {
		return nil, err
	}

	embedding.EntryType = model.EntryType(entryType)
	embedding.Vector = vector.Slice()

	return embedding, nil
}
