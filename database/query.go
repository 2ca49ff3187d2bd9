package database

import (
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/memoria/model"
)

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// vectorValue stores an empty vector as NULL.
func vectorValue(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func stringArgs[T ~string](values []T) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = string(v)
	}
	return args
}

// entryConditions renders filter as conditions on the entries table aliased
// as e. typeColumn names the column the type filter applies to.
func entryConditions(filter model.EntryFilter, typeColumn string) ([]string, []any) {
	var where []string
	var args []any

	if len(filter.Types) > 0 {
		where = append(where, typeColumn+` IN (`+placeholders(len(filter.Types))+`)`)
		args = append(args, stringArgs(filter.Types)...)
	}

	if len(filter.Scopes) > 0 {
		scopeConditions := make([]string, 0, len(filter.Scopes))
		for _, scope := range filter.Scopes {
			scopeConditions = append(scopeConditions, `(e.scope_type = ? AND e.scope_id = ?)`)
			args = append(args, string(scope.Type), scope.ID)
		}
		where = append(where, `(`+strings.Join(scopeConditions, ` OR `)+`)`)
	}

	if filter.ActiveOnly {
		where = append(where, `e.is_active = ?`)
		args = append(args, true)
	}

	if tags := lowerTags(filter.Tags); len(tags) > 0 {
		where = append(where, `EXISTS (SELECT 1 FROM entry_tags t WHERE t.entry_id = e.id AND LOWER(t.tag) IN (`+placeholders(len(tags))+`))`)
		args = append(args, stringArgs(tags)...)
	}
	for _, tag := range lowerTags(filter.RequireTags) {
		where = append(where, `EXISTS (SELECT 1 FROM entry_tags t WHERE t.entry_id = e.id AND LOWER(t.tag) = ?)`)
		args = append(args, tag)
	}
	if tags := lowerTags(filter.ExcludeTags); len(tags) > 0 {
		where = append(where, `NOT EXISTS (SELECT 1 FROM entry_tags t WHERE t.entry_id = e.id AND LOWER(t.tag) IN (`+placeholders(len(tags))+`))`)
		args = append(args, stringArgs(tags)...)
	}

	return where, args
}

func lowerTags(tags []string) []string {
	lowered := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
			lowered = append(lowered, tag)
		}
	}
	return lowered
}
