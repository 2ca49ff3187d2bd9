package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	loadSql "github.com/siherrmann/memoria/sql"
)

// EntriesDBHandlerFunctions defines the interface for Entries database operations.
type EntriesDBHandlerFunctions interface {
	InsertEntry(ctx context.Context, entry *model.Entry) error
	SelectEntry(ctx context.Context, entryType model.EntryType, id string) (*model.Entry, error)
	SelectEntriesByIDs(ctx context.Context, entryType model.EntryType, ids []string) ([]*model.Entry, error)
	SelectEntries(ctx context.Context, filter model.EntryFilter) ([]*model.Entry, error)
	DeleteEntry(ctx context.Context, entryType model.EntryType, id string) error
}

// EntriesDBHandler handles entry-related database operations
type EntriesDBHandler struct {
	db *helper.Database
}

const entryColumns = `id, entry_type, scope_type, scope_id, name, content, category, priority, is_active, metadata, created_at, updated_at`

// NewEntriesDBHandler creates a new entries database handler.
// It loads the entries schema, including the lexical index tables.
// If force is true, the schema is executed even if the tables already exist.
func NewEntriesDBHandler(db *helper.Database, force bool) (*EntriesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	err := loadSql.LoadEntriesSql(db.Instance, db.Driver, force)
	if err != nil {
		return nil, helper.NewError("load entries sql", err)
	}

	db.Logger.Info("Initialized EntriesDBHandler")

	return &EntriesDBHandler{db: db}, nil
}

// InsertEntry inserts or replaces an entry together with its tags.
// A missing id is generated and timestamps default to now.
func (h *EntriesDBHandler) InsertEntry(ctx context.Context, entry *model.Entry) error {
	if !entry.Type.Valid() {
		return helper.Errorf(helper.ErrInvalidInput, "unknown entry type %q", entry.Type)
	}
	if err := entry.Scope.Validate(); err != nil {
		return helper.NewError("validate scope", err)
	}
	if strings.TrimSpace(entry.Name) == "" {
		return helper.Errorf(helper.ErrInvalidInput, "entry %s is empty", entry.Type.Trait().TitleField)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}
	if entry.Metadata == nil {
		entry.Metadata = model.Metadata{}
	}

	var priority sql.NullInt64
	if entry.Priority != nil {
		priority = sql.NullInt64{Int64: int64(*entry.Priority), Valid: true}
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, h.db.Rebind(`
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			entry_type = excluded.entry_type,
			scope_type = excluded.scope_type,
			scope_id = excluded.scope_id,
			name = excluded.name,
			content = excluded.content,
			category = excluded.category,
			priority = excluded.priority,
			is_active = excluded.is_active,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`),
		entry.ID,
		string(entry.Type),
		string(entry.Scope.Type),
		entry.Scope.ID,
		entry.Name,
		entry.Content,
		entry.Category,
		priority,
		entry.IsActive,
		entry.Metadata,
		toMillis(entry.CreatedAt),
		toMillis(entry.UpdatedAt),
	)
	if err != nil {
		return helper.NewError("insert entry", err)
	}

	_, err = tx.ExecContext(ctx, h.db.Rebind(`DELETE FROM entry_tags WHERE entry_id = ?`), entry.ID)
	if err != nil {
		return helper.NewError("delete tags", err)
	}

	for _, tag := range entry.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		_, err = tx.ExecContext(ctx, h.db.Rebind(`INSERT INTO entry_tags (entry_id, tag) VALUES (?, ?) ON CONFLICT DO NOTHING`), entry.ID, tag)
		if err != nil {
			return helper.NewError("insert tag", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit", err)
	}

	return nil
}

// SelectEntry retrieves one entry, failing with ErrNotFound if it does not exist.
func (h *EntriesDBHandler) SelectEntry(ctx context.Context, entryType model.EntryType, id string) (*model.Entry, error) {
	row := h.db.Instance.QueryRowContext(ctx, h.db.Rebind(
		`SELECT `+entryColumns+` FROM entries WHERE entry_type = ? AND id = ?`),
		string(entryType), id,
	)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.Errorf(helper.ErrNotFound, "%s %s", entryType, id)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	if err := h.loadTags(ctx, []*model.Entry{entry}); err != nil {
		return nil, err
	}

	return entry, nil
}

// SelectEntriesByIDs retrieves the entries of one type with the given ids.
// Ids without a record are skipped.
func (h *EntriesDBHandler) SelectEntriesByIDs(ctx context.Context, entryType model.EntryType, ids []string) ([]*model.Entry, error) {
	if len(ids) == 0 {
		return []*model.Entry{}, nil
	}

	args := append([]any{string(entryType)}, stringArgs(ids)...)
	rows, err := h.db.Instance.QueryContext(ctx, h.db.Rebind(
		`SELECT `+entryColumns+` FROM entries WHERE entry_type = ? AND id IN (`+placeholders(len(ids))+`)`),
		args...,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	if err := h.loadTags(ctx, entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// SelectEntries lists entries matching the filter, most recently updated
// first. Limit and offset apply after every condition, tags included.
func (h *EntriesDBHandler) SelectEntries(ctx context.Context, filter model.EntryFilter) ([]*model.Entry, error) {
	where, args := entryConditions(filter, `e.entry_type`)

	query := `SELECT ` + entryColumns + ` FROM entries e`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY updated_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	rows, err := h.db.Instance.QueryContext(ctx, h.db.Rebind(query), args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	if err := h.loadTags(ctx, entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// DeleteEntry deletes an entry and its tags.
func (h *EntriesDBHandler) DeleteEntry(ctx context.Context, entryType model.EntryType, id string) error {
	result, err := h.db.Instance.ExecContext(ctx, h.db.Rebind(`DELETE FROM entries WHERE entry_type = ? AND id = ?`), string(entryType), id)
	if err != nil {
		return helper.NewError("delete entry", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return helper.NewError("rows affected", err)
	}
	if affected == 0 {
		return helper.Errorf(helper.ErrNotFound, "%s %s", entryType, id)
	}

	return nil
}

func (h *EntriesDBHandler) loadTags(ctx context.Context, entries []*model.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	byID := make(map[string]*model.Entry, len(entries))
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		byID[entry.ID] = entry
		ids = append(ids, entry.ID)
	}

	rows, err := h.db.Instance.QueryContext(ctx, h.db.Rebind(
		`SELECT entry_id, tag FROM entry_tags WHERE entry_id IN (`+placeholders(len(ids))+`) ORDER BY entry_id, tag`),
		stringArgs(ids)...,
	)
	if err != nil {
		return helper.NewError("query tags", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entryID, tag string
		if err := rows.Scan(&entryID, &tag); err != nil {
			return helper.NewError("scan tag", err)
		}
		if entry, ok := byID[entryID]; ok {
			entry.Tags = append(entry.Tags, tag)
		}
	}

	if err := rows.Err(); err != nil {
		return helper.NewError("rows error", err)
	}

	return nil
}

func scanEntries(rows *sql.Rows) ([]*model.Entry, error) {
	defer rows.Close()

	entries := []*model.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entries, nil
}

func scanEntry(row rowScanner) (*model.Entry, error) {
	entry := &model.Entry{}
	var entryType, scopeType string
	var priority sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&entry.ID,
		&entryType,
		&scopeType,
		&entry.Scope.ID,
		&entry.Name,
		&entry.Content,
		&entry.Category,
		&priority,
		&entry.IsActive,
		&entry.Metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Type = model.EntryType(entryType)
	entry.Scope.Type = model.ScopeType(scopeType)
	if priority.Valid {
		p := int(priority.Int64)
		entry.Priority = &p
	}
	entry.CreatedAt = fromMillis(createdAt)
	entry.UpdatedAt = fromMillis(updatedAt)

	return entry, nil
}
