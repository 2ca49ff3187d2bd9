package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	loadSql "github.com/siherrmann/memoria/sql"
)

// ScopesDBHandlerFunctions defines the interface for the scope hierarchy.
type ScopesDBHandlerFunctions interface {
	InsertScope(ctx context.Context, scope model.Scope, parent model.Scope, name string) error
	SelectParent(ctx context.Context, scope model.Scope) (*model.Scope, error)
}

// ScopesDBHandler stores which scope each org, project and session belongs to
type ScopesDBHandler struct {
	db *helper.Database
}

// NewScopesDBHandler creates a new scopes database handler.
// If force is true, the schema is executed even if the table already exists.
func NewScopesDBHandler(db *helper.Database, force bool) (*ScopesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	err := loadSql.LoadScopesSql(db.Instance, db.Driver, force)
	if err != nil {
		return nil, helper.NewError("load scopes sql", err)
	}

	db.Logger.Info("Initialized ScopesDBHandler")

	return &ScopesDBHandler{db: db}, nil
}

// InsertScope registers scope under parent. The parent must be of a broader
// scope type, and the global scope cannot be registered.
func (h *ScopesDBHandler) InsertScope(ctx context.Context, scope model.Scope, parent model.Scope, name string) error {
	if err := scope.Validate(); err != nil {
		return helper.NewError("validate scope", err)
	}
	if err := parent.Validate(); err != nil {
		return helper.NewError("validate parent scope", err)
	}
	if scope.IsGlobal() {
		return helper.Errorf(helper.ErrInvalidInput, "global scope has no parent")
	}
	if scopeRank(parent.Type) >= scopeRank(scope.Type) {
		return helper.Errorf(helper.ErrInvalidInput, "%s cannot be the parent of %s", parent.Type, scope.Type)
	}

	_, err := h.db.Instance.ExecContext(ctx, h.db.Rebind(`
		INSERT INTO scopes (scope_type, scope_id, parent_type, parent_id, name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (scope_type, scope_id) DO UPDATE SET
			parent_type = excluded.parent_type,
			parent_id = excluded.parent_id,
			name = excluded.name`),
		string(scope.Type), scope.ID, string(parent.Type), parent.ID, name,
	)
	if err != nil {
		return helper.NewError("insert scope", err)
	}

	return nil
}

// SelectParent returns the registered parent of scope, or nil if the scope
// is not registered.
func (h *ScopesDBHandler) SelectParent(ctx context.Context, scope model.Scope) (*model.Scope, error) {
	var parentType, parentID string
	err := h.db.Instance.QueryRowContext(ctx, h.db.Rebind(
		`SELECT parent_type, parent_id FROM scopes WHERE scope_type = ? AND scope_id = ?`),
		string(scope.Type), scope.ID,
	).Scan(&parentType, &parentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return &model.Scope{Type: model.ScopeType(parentType), ID: parentID}, nil
}

func scopeRank(t model.ScopeType) int {
	switch t {
	case model.ScopeTypeGlobal:
		return 0
	case model.ScopeTypeOrg:
		return 1
	case model.ScopeTypeProject:
		return 2
	default:
		return 3
	}
}
