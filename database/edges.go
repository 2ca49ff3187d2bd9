package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	loadSql "github.com/siherrmann/memoria/sql"
)

// EdgesDBHandlerFunctions defines the interface for relation database operations.
type EdgesDBHandlerFunctions interface {
	InsertEdge(ctx context.Context, relation *model.Relation) error
	SelectEdge(ctx context.Context, id string) (*model.Relation, error)
	SelectEdgesFrom(ctx context.Context, node model.NodeRef, relationType model.RelationType) ([]*model.Relation, error)
	SelectEdgesTo(ctx context.Context, node model.NodeRef, relationType model.RelationType) ([]*model.Relation, error)
	SelectRelations(ctx context.Context, node model.NodeRef) ([]*model.Relation, error)
	DeleteEdge(ctx context.Context, id string) error
	TraverseMultiHop(ctx context.Context, query model.TraversalQuery) ([]model.NodeRef, error)
}

// EdgesDBHandler handles relation-related database operations
type EdgesDBHandler struct {
	db       *helper.Database
	multiHop bool
}

const relationColumns = `id, source_type, source_id, relation_type, target_type, target_id, created_at`

// NewEdgesDBHandler creates a new relations database handler.
// If force is true, the schema is executed even if the table already exists.
func NewEdgesDBHandler(db *helper.Database, force bool) (*EdgesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	err := loadSql.LoadRelationsSql(db.Instance, db.Driver, force)
	if err != nil {
		return nil, helper.NewError("load relations sql", err)
	}

	db.Logger.Info("Initialized EdgesDBHandler")

	return &EdgesDBHandler{db: db, multiHop: true}, nil
}

// DisableMultiHop makes TraverseMultiHop report ErrUnsupported so callers
// walk the graph edge by edge instead.
func (h *EdgesDBHandler) DisableMultiHop() {
	h.multiHop = false
}

// InsertEdge inserts a new relation. A missing id is generated.
func (h *EdgesDBHandler) InsertEdge(ctx context.Context, relation *model.Relation) error {
	if relation.SourceType == "" || relation.SourceID == "" || relation.TargetType == "" || relation.TargetID == "" {
		return helper.Errorf(helper.ErrInvalidInput, "relation endpoints must be set")
	}
	if relation.RelationType == "" {
		return helper.Errorf(helper.ErrInvalidInput, "relation type must be set")
	}

	if relation.ID == "" {
		relation.ID = uuid.NewString()
	}
	if relation.CreatedAt.IsZero() {
		relation.CreatedAt = time.Now().UTC()
	}

	_, err := h.db.Instance.ExecContext(ctx, h.db.Rebind(
		`INSERT INTO relations (`+relationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		relation.ID,
		string(relation.SourceType),
		relation.SourceID,
		string(relation.RelationType),
		string(relation.TargetType),
		relation.TargetID,
		toMillis(relation.CreatedAt),
	)
	if err != nil {
		return helper.NewError("insert relation", err)
	}

	return nil
}

// SelectEdge retrieves a relation by id.
func (h *EdgesDBHandler) SelectEdge(ctx context.Context, id string) (*model.Relation, error) {
	row := h.db.Instance.QueryRowContext(ctx, h.db.Rebind(`SELECT `+relationColumns+` FROM relations WHERE id = ?`), id)

	relation, err := scanRelation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.Errorf(helper.ErrNotFound, "relation %s", id)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return relation, nil
}

// SelectEdgesFrom returns the relations whose source is node.
// An empty relationType matches every type.
func (h *EdgesDBHandler) SelectEdgesFrom(ctx context.Context, node model.NodeRef, relationType model.RelationType) ([]*model.Relation, error) {
	return h.selectEdges(ctx, `source_type = ? AND source_id = ?`, node, relationType)
}

// SelectEdgesTo returns the relations whose target is node.
// An empty relationType matches every type.
func (h *EdgesDBHandler) SelectEdgesTo(ctx context.Context, node model.NodeRef, relationType model.RelationType) ([]*model.Relation, error) {
	return h.selectEdges(ctx, `target_type = ? AND target_id = ?`, node, relationType)
}

// SelectRelations returns every relation touching node in either direction.
func (h *EdgesDBHandler) SelectRelations(ctx context.Context, node model.NodeRef) ([]*model.Relation, error) {
	rows, err := h.db.Instance.QueryContext(ctx, h.db.Rebind(
		`SELECT `+relationColumns+` FROM relations
		WHERE (source_type = ? AND source_id = ?) OR (target_type = ? AND target_id = ?)
		ORDER BY created_at, id`),
		string(node.Type), node.ID, string(node.Type), node.ID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return scanRelations(rows)
}

func (h *EdgesDBHandler) selectEdges(ctx context.Context, condition string, node model.NodeRef, relationType model.RelationType) ([]*model.Relation, error) {
	query := `SELECT ` + relationColumns + ` FROM relations WHERE ` + condition
	args := []any{string(node.Type), node.ID}
	if relationType != "" {
		query += ` AND relation_type = ?`
		args = append(args, string(relationType))
	}
	query += ` ORDER BY created_at, id`

	rows, err := h.db.Instance.QueryContext(ctx, h.db.Rebind(query), args...)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return scanRelations(rows)
}

// DeleteEdge deletes a relation by id.
func (h *EdgesDBHandler) DeleteEdge(ctx context.Context, id string) error {
	result, err := h.db.Instance.ExecContext(ctx, h.db.Rebind(`DELETE FROM relations WHERE id = ?`), id)
	if err != nil {
		return helper.NewError("delete relation", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return helper.NewError("rows affected", err)
	}
	if affected == 0 {
		return helper.Errorf(helper.ErrNotFound, "relation %s", id)
	}

	return nil
}

// TraverseMultiHop resolves every entry reachable from query.Start within
// query.Depth hops in a single recursive query. Each node is reported once
// at its shortest distance. Project nodes are never expanded.
func (h *EdgesDBHandler) TraverseMultiHop(ctx context.Context, query model.TraversalQuery) ([]model.NodeRef, error) {
	if !h.multiHop {
		return nil, helper.Errorf(helper.ErrUnsupported, "multi-hop traversal disabled")
	}

	query = query.Normalize()
	start := query.Start
	trail := "|" + start.String() + "|"

	args := []any{string(start.Type), start.ID, trail, query.Depth, string(query.RelationType), string(query.RelationType)}
	args = append(args, stringArgs(model.EntryTypes)...)
	args = append(args, query.MaxResults)

	rows, err := h.db.Instance.QueryContext(ctx, h.db.Rebind(h.multiHopQuery(query.Direction)), args...)
	if err != nil {
		return nil, helper.NewError("multi-hop query", err)
	}
	defer rows.Close()

	nodes := []model.NodeRef{}
	for rows.Next() {
		var nodeType, nodeID string
		var hops int
		if err := rows.Scan(&nodeType, &nodeID, &hops); err != nil {
			return nil, helper.NewError("scan", err)
		}
		nodes = append(nodes, model.NodeRef{Type: model.EntryType(nodeType), ID: nodeID})
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return nodes, nil
}

// multiHopQuery builds the recursive walk for one direction. The trail
// column records visited nodes as |type:id| so cycles end the walk.
func (h *EdgesDBHandler) multiHopQuery(direction model.Direction) string {
	fromSource := `r.source_type = w.node_type AND r.source_id = w.node_id`
	fromTarget := `r.target_type = w.node_type AND r.target_id = w.node_id`

	var join, nextType, nextID string
	switch direction {
	case model.DirectionForward:
		join, nextType, nextID = fromSource, `r.target_type`, `r.target_id`
	case model.DirectionBackward:
		join, nextType, nextID = fromTarget, `r.source_type`, `r.source_id`
	default:
		join = `(` + fromSource + `) OR (` + fromTarget + `)`
		nextType = `CASE WHEN ` + fromSource + ` THEN r.target_type ELSE r.source_type END`
		nextID = `CASE WHEN ` + fromSource + ` THEN r.target_id ELSE r.source_id END`
	}

	position := `instr`
	if h.db.IsPostgres() {
		position = `strpos`
	}

	return fmt.Sprintf(`
		WITH RECURSIVE walk (node_type, node_id, depth, trail) AS (
			SELECT CAST(? AS TEXT), CAST(? AS TEXT), 0, CAST(? AS TEXT)
			UNION ALL
			SELECT %[2]s, %[3]s, w.depth + 1, w.trail || %[2]s || ':' || %[3]s || '|'
			FROM walk w
			JOIN relations r ON %[1]s
			WHERE w.depth < ?
				AND (CAST(? AS TEXT) = '' OR r.relation_type = ?)
				AND %[2]s <> '%[5]s'
				AND %[4]s(w.trail, '|' || %[2]s || ':' || %[3]s || '|') = 0
		)
		SELECT node_type, node_id, MIN(depth) AS hops
		FROM walk
		WHERE depth > 0 AND node_type IN (%[6]s)
		GROUP BY node_type, node_id
		ORDER BY hops, node_type, node_id
		LIMIT ?`,
		join, nextType, nextID, position, model.EntryTypeProject, placeholders(len(model.EntryTypes)),
	)
}

func scanRelations(rows *sql.Rows) ([]*model.Relation, error) {
	defer rows.Close()

	relations := []*model.Relation{}
	for rows.Next() {
		relation, err := scanRelation(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		relations = append(relations, relation)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return relations, nil
}

func scanRelation(row rowScanner) (*model.Relation, error) {
	relation := &model.Relation{}
	var sourceType, relationType, targetType string
	var createdAt int64

	err := row.Scan(
		&relation.ID,
		&sourceType,
		&relation.SourceID,
		&relationType,
		&targetType,
		&relation.TargetID,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	relation.SourceType = model.EntryType(sourceType)
	relation.TargetType = model.EntryType(targetType)
	relation.RelationType = model.RelationType(relationType)
	relation.CreatedAt = fromMillis(createdAt)

	return relation, nil
}
