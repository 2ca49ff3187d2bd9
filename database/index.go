package database

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	loadSql "github.com/siherrmann/memoria/sql"
)

// DefaultLexicalLimit caps the matches returned by a single lexical search.
const DefaultLexicalLimit = 200

// IndexDBHandlerFunctions defines the interface for the lexical index.
type IndexDBHandlerFunctions interface {
	Search(ctx context.Context, term string, filter model.EntryFilter) (*model.LexicalMatches, error)
	Rebuild(ctx context.Context) error
}

// IndexDBHandler searches the full-text index kept alongside the entries
// table. On sqlite this is an FTS5 table ranked by bm25, on postgres a
// generated tsvector column ranked by ts_rank.
type IndexDBHandler struct {
	db    *helper.Database
	limit int
}

// NewIndexDBHandler creates a new lexical index handler. The index is part
// of the entries schema, which is loaded if missing.
func NewIndexDBHandler(db *helper.Database, limit int) (*IndexDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	err := loadSql.LoadEntriesSql(db.Instance, db.Driver, false)
	if err != nil {
		return nil, helper.NewError("load entries sql", err)
	}

	if limit <= 0 {
		limit = DefaultLexicalLimit
	}

	db.Logger.Info("Initialized IndexDBHandler")

	return &IndexDBHandler{db: db, limit: limit}, nil
}

// Search matches term against entry names, content and categories. Any
// token may match. Only entries passing filter are ranked, so the limit
// is never spent on entries the caller drops later. Scores are normalized
// so the best match scores 1. A term without searchable tokens matches
// nothing. Limit and offset of filter are ignored.
func (h *IndexDBHandler) Search(ctx context.Context, term string, filter model.EntryFilter) (*model.LexicalMatches, error) {
	matches := model.NewLexicalMatches()

	tokens := searchTokens(term)
	if len(tokens) == 0 {
		return matches, nil
	}

	var query string
	var args []any
	if h.db.IsPostgres() {
		tsQuery := strings.Join(tokens, " | ")
		query = `SELECT e.id, e.entry_type, ts_rank(e.search_vector, to_tsquery('simple', ?)) AS score
			FROM entries e
			WHERE e.search_vector @@ to_tsquery('simple', ?)`
		args = []any{tsQuery, tsQuery}
		where, whereArgs := entryConditions(filter, `e.entry_type`)
		for _, condition := range where {
			query += ` AND ` + condition
		}
		args = append(args, whereArgs...)
		query += ` ORDER BY score DESC, e.id LIMIT ?`
	} else {
		quoted := make([]string, len(tokens))
		for i, token := range tokens {
			quoted[i] = `"` + token + `"`
		}
		query = `SELECT entries_fts.entry_id, entries_fts.entry_type, -bm25(entries_fts) AS score
			FROM entries_fts`
		if filter.JoinsEntries() {
			query += ` JOIN entries e ON e.id = entries_fts.entry_id`
		}
		query += ` WHERE entries_fts MATCH ?`
		args = []any{strings.Join(quoted, " OR ")}
		where, whereArgs := entryConditions(filter, `entries_fts.entry_type`)
		for _, condition := range where {
			query += ` AND ` + condition
		}
		args = append(args, whereArgs...)
		query += ` ORDER BY score DESC, entries_fts.entry_id LIMIT ?`
	}
	args = append(args, h.limit)

	rows, err := h.db.Instance.QueryContext(ctx, h.db.Rebind(query), args...)
	if err != nil {
		return nil, helper.NewError("lexical search", err)
	}
	defer rows.Close()

	type hit struct {
		entryType model.EntryType
		id        string
		score     float64
	}
	hits := []hit{}
	best := 0.0
	for rows.Next() {
		var id, entryType string
		var score float64
		if err := rows.Scan(&id, &entryType, &score); err != nil {
			return nil, helper.NewError("scan", err)
		}
		hits = append(hits, hit{entryType: model.EntryType(entryType), id: id, score: score})
		best = max(best, score)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	for _, hit := range hits {
		score := 1.0
		if best > 0 {
			score = max(hit.score, 0) / best
		}
		matches.Add(hit.entryType, hit.id, score)
	}

	return matches, nil
}

// Rebuild recreates the lexical index from the entries table.
func (h *IndexDBHandler) Rebuild(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if h.db.IsPostgres() {
		_, err := h.db.Instance.ExecContext(ctx, `REINDEX INDEX idx_entries_search`)
		if err != nil {
			return helper.NewError("reindex", err)
		}
		h.db.Logger.Info("Rebuilt lexical index")
		return nil
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `DELETE FROM entries_fts`)
	if err != nil {
		return helper.NewError("clear index", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries_fts (entry_id, entry_type, name, content, category)
		SELECT id, entry_type, name, content, category FROM entries`)
	if err != nil {
		return helper.NewError("fill index", err)
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit", err)
	}

	h.db.Logger.Info("Rebuilt lexical index")

	return nil
}

// searchTokens splits term into lowercase letter and digit runs. Everything
// else, including query syntax of either backend, is dropped.
func searchTokens(term string) []string {
	fields := strings.FieldsFunc(strings.ToLower(term), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := map[string]struct{}{}
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		tokens = append(tokens, field)
	}

	return tokens
}
