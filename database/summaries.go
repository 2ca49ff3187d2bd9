package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	loadSql "github.com/siherrmann/memoria/sql"
)

// SummariesDBHandlerFunctions defines the interface for summary hierarchy operations.
type SummariesDBHandlerFunctions interface {
	InsertSummary(ctx context.Context, summary *model.Summary) error
	InsertMember(ctx context.Context, member *model.SummaryMember) error
	SelectSummary(ctx context.Context, id string) (*model.Summary, error)
	SelectMaxLevel(ctx context.Context, scope model.Scope) (int, bool, error)
	SelectSummariesAtLevel(ctx context.Context, scope model.Scope, level int) ([]*model.Summary, error)
	SelectChildSummaries(ctx context.Context, parentIDs []string) ([]*model.Summary, error)
	SelectMembers(ctx context.Context, summaryIDs []string) ([]*model.SummaryMember, error)
	IncrementAccessCount(ctx context.Context, id string) error
}

// SummariesDBHandler handles summary-related database operations
type SummariesDBHandler struct {
	db *helper.Database
}

const summaryColumns = `id, scope_type, scope_id, level, parent_summary_id, title, content, embedding, member_count, coherence_score, compression_ratio, access_count, last_accessed_at, created_at, updated_at`

// NewSummariesDBHandler creates a new summaries database handler.
// If force is true, the schema is executed even if the tables already exist.
func NewSummariesDBHandler(db *helper.Database, force bool) (*SummariesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	err := loadSql.LoadSummariesSql(db.Instance, db.Driver, force)
	if err != nil {
		return nil, helper.NewError("load summaries sql", err)
	}

	db.Logger.Info("Initialized SummariesDBHandler")

	return &SummariesDBHandler{db: db}, nil
}

// InsertSummary inserts or replaces a summary. A parent summary must exist
// exactly one level above.
func (h *SummariesDBHandler) InsertSummary(ctx context.Context, summary *model.Summary) error {
	if summary.Level < 0 {
		return helper.Errorf(helper.ErrInvalidInput, "summary level %d is negative", summary.Level)
	}
	if err := summary.Scope.Validate(); err != nil {
		return helper.NewError("validate scope", err)
	}

	if summary.ParentSummaryID != nil {
		parent, err := h.SelectSummary(ctx, *summary.ParentSummaryID)
		if err != nil {
			return helper.NewError("select parent summary", err)
		}
		if parent.Level != summary.Level+1 {
			return helper.Errorf(helper.ErrInvalidInput, "parent summary level %d must be %d", parent.Level, summary.Level+1)
		}
	}

	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = now
	}
	if summary.UpdatedAt.IsZero() {
		summary.UpdatedAt = summary.CreatedAt
	}

	var lastAccessed sql.NullInt64
	if summary.LastAccessedAt != nil {
		lastAccessed = sql.NullInt64{Int64: toMillis(*summary.LastAccessedAt), Valid: true}
	}

	_, err := h.db.Instance.ExecContext(ctx, h.db.Rebind(`
		INSERT INTO summaries (`+summaryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			level = excluded.level,
			parent_summary_id = excluded.parent_summary_id,
			title = excluded.title,
			content = excluded.content,
			embedding = excluded.embedding,
			coherence_score = excluded.coherence_score,
			compression_ratio = excluded.compression_ratio,
			updated_at = excluded.updated_at`),
		summary.ID,
		string(summary.Scope.Type),
		summary.Scope.ID,
		summary.Level,
		summary.ParentSummaryID,
		summary.Title,
		summary.Content,
		vectorValue(summary.Embedding),
		summary.MemberCount,
		summary.CoherenceScore,
		summary.CompressionRatio,
		summary.AccessCount,
		lastAccessed,
		toMillis(summary.CreatedAt),
		toMillis(summary.UpdatedAt),
	)
	if err != nil {
		return helper.NewError("insert summary", err)
	}

	return nil
}

// InsertMember adds or replaces a member of a summary and refreshes the
// summary's member count.
func (h *SummariesDBHandler) InsertMember(ctx context.Context, member *model.SummaryMember) error {
	if member.SummaryID == "" || member.MemberID == "" {
		return helper.Errorf(helper.ErrInvalidInput, "summary member needs a summary id and a member id")
	}
	if !member.IsSummary() && !member.EntryType().Valid() {
		return helper.Errorf(helper.ErrInvalidInput, "unknown member type %q", member.MemberType)
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, h.db.Rebind(`
		INSERT INTO summary_members (summary_id, member_type, member_id, contribution_score, display_order)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (summary_id, member_type, member_id) DO UPDATE SET
			contribution_score = excluded.contribution_score,
			display_order = excluded.display_order`),
		member.SummaryID,
		member.MemberType,
		member.MemberID,
		member.ContributionScore,
		member.DisplayOrder,
	)
	if err != nil {
		return helper.NewError("insert summary member", err)
	}

	_, err = tx.ExecContext(ctx, h.db.Rebind(`
		UPDATE summaries
		SET member_count = (SELECT COUNT(*) FROM summary_members WHERE summary_id = ?)
		WHERE id = ?`),
		member.SummaryID, member.SummaryID,
	)
	if err != nil {
		return helper.NewError("update member count", err)
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit", err)
	}

	return nil
}

// SelectSummary retrieves a summary by id, failing with ErrNotFound if it
// does not exist.
func (h *SummariesDBHandler) SelectSummary(ctx context.Context, id string) (*model.Summary, error) {
	row := h.db.Instance.QueryRowContext(ctx, h.db.Rebind(`SELECT `+summaryColumns+` FROM summaries WHERE id = ?`), id)

	summary, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.Errorf(helper.ErrNotFound, "summary %s", id)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return summary, nil
}

// SelectMaxLevel returns the highest summary level in scope. The boolean is
// false if the scope has no summaries.
func (h *SummariesDBHandler) SelectMaxLevel(ctx context.Context, scope model.Scope) (int, bool, error) {
	var level sql.NullInt64
	err := h.db.Instance.QueryRowContext(ctx, h.db.Rebind(
		`SELECT MAX(level) FROM summaries WHERE scope_type = ? AND scope_id = ?`),
		string(scope.Type), scope.ID,
	).Scan(&level)
	if err != nil {
		return 0, false, helper.NewError("scan", err)
	}

	return int(level.Int64), level.Valid, nil
}

// SelectSummariesAtLevel returns every summary of one level in scope.
func (h *SummariesDBHandler) SelectSummariesAtLevel(ctx context.Context, scope model.Scope, level int) ([]*model.Summary, error) {
	rows, err := h.db.Instance.QueryContext(ctx, h.db.Rebind(
		`SELECT `+summaryColumns+` FROM summaries
		WHERE scope_type = ? AND scope_id = ? AND level = ?
		ORDER BY id`),
		string(scope.Type), scope.ID, level,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return scanSummaries(rows)
}

// SelectChildSummaries returns the summaries whose parent is one of parentIDs.
func (h *SummariesDBHandler) SelectChildSummaries(ctx context.Context, parentIDs []string) ([]*model.Summary, error) {
	if len(parentIDs) == 0 {
		return []*model.Summary{}, nil
	}

	rows, err := h.db.Instance.QueryContext(ctx, h.db.Rebind(
		`SELECT `+summaryColumns+` FROM summaries
		WHERE parent_summary_id IN (`+placeholders(len(parentIDs))+`)
		ORDER BY id`),
		stringArgs(parentIDs)...,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return scanSummaries(rows)
}

// SelectMembers returns the members of the given summaries in display order.
func (h *SummariesDBHandler) SelectMembers(ctx context.Context, summaryIDs []string) ([]*model.SummaryMember, error) {
	if len(summaryIDs) == 0 {
		return []*model.SummaryMember{}, nil
	}

	rows, err := h.db.Instance.QueryContext(ctx, h.db.Rebind(
		`SELECT summary_id, member_type, member_id, contribution_score, display_order
		FROM summary_members
		WHERE summary_id IN (`+placeholders(len(summaryIDs))+`)
		ORDER BY summary_id, display_order, member_id`),
		stringArgs(summaryIDs)...,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	members := []*model.SummaryMember{}
	for rows.Next() {
		member := &model.SummaryMember{}
		err := rows.Scan(
			&member.SummaryID,
			&member.MemberType,
			&member.MemberID,
			&member.ContributionScore,
			&member.DisplayOrder,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return members, nil
}

// IncrementAccessCount records one access of a summary.
func (h *SummariesDBHandler) IncrementAccessCount(ctx context.Context, id string) error {
	result, err := h.db.Instance.ExecContext(ctx, h.db.Rebind(
		`UPDATE summaries SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`),
		toMillis(time.Now()), id,
	)
	if err != nil {
		return helper.NewError("increment access count", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return helper.NewError("rows affected", err)
	}
	if affected == 0 {
		return helper.Errorf(helper.ErrNotFound, "summary %s", id)
	}

	return nil
}

func scanSummaries(rows *sql.Rows) ([]*model.Summary, error) {
	defer rows.Close()

	summaries := []*model.Summary{}
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return summaries, nil
}

func scanSummary(row rowScanner) (*model.Summary, error) {
	summary := &model.Summary{}
	var scopeType string
	var parentID sql.NullString
	var embedding sql.Null[pgvector.Vector]
	var lastAccessed sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&summary.ID,
		&scopeType,
		&summary.Scope.ID,
		&summary.Level,
		&parentID,
		&summary.Title,
		&summary.Content,
		&embedding,
		&summary.MemberCount,
		&summary.CoherenceScore,
		&summary.CompressionRatio,
		&summary.AccessCount,
		&lastAccessed,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	summary.Scope.Type = model.ScopeType(scopeType)
	if parentID.Valid {
		summary.ParentSummaryID = &parentID.String
	}
	if embedding.Valid {
		summary.Embedding = embedding.V.Slice()
	}
	if lastAccessed.Valid {
		accessed := fromMillis(lastAccessed.Int64)
		summary.LastAccessedAt = &accessed
	}
	summary.CreatedAt = fromMillis(createdAt)
	summary.UpdatedAt = fromMillis(updatedAt)

	return summary, nil
}
