package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/siherrmann/memoria/helper"
)

// EntryType is the closed set of entry kinds stored in memory.
type EntryType string

const (
	EntryTypeTool       EntryType = "tool"
	EntryTypeGuideline  EntryType = "guideline"
	EntryTypeKnowledge  EntryType = "knowledge"
	EntryTypeExperience EntryType = "experience"

	// EntryTypeProject marks container nodes in the relation graph. It is
	// never returned as content.
	EntryTypeProject EntryType = "project"
)

// EntryTypes lists every content entry type in canonical order.
var EntryTypes = []EntryType{
	EntryTypeTool,
	EntryTypeGuideline,
	EntryTypeKnowledge,
	EntryTypeExperience,
}

// EntryTrait names the fields that carry an entry type's title, content and key.
type EntryTrait struct {
	TitleField   string `json:"title_field"`
	ContentField string `json:"content_field"`
	KeyField     string `json:"key_field"`
}

var entryTraits = map[EntryType]EntryTrait{
	EntryTypeTool:       {TitleField: "name", ContentField: "description", KeyField: "name"},
	EntryTypeGuideline:  {TitleField: "name", ContentField: "content", KeyField: "name"},
	EntryTypeKnowledge:  {TitleField: "title", ContentField: "content", KeyField: "title"},
	EntryTypeExperience: {TitleField: "title", ContentField: "content", KeyField: "title"},
}

// Valid reports whether t is one of the content entry types.
func (t EntryType) Valid() bool {
	_, ok := entryTraits[t]
	return ok
}

// Trait returns the field mapping of t.
func (t EntryType) Trait() EntryTrait {
	if trait, ok := entryTraits[t]; ok {
		return trait
	}
	return EntryTrait{TitleField: "title", ContentField: "content", KeyField: "title"}
}

// ParseEntryType parses a content entry type.
func ParseEntryType(s string) (EntryType, error) {
	t := EntryType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", helper.Errorf(helper.ErrInvalidInput, "unknown entry type %q", s)
	}
	return t, nil
}

// Entry is a single memory record: a tool, guideline, knowledge item or experience.
// Name holds the type's title field and Content its content field.
type Entry struct {
	ID        string    `json:"id"`
	Type      EntryType `json:"type"`
	Scope     Scope     `json:"scope"`
	Name      string    `json:"-"`
	Content   string    `json:"-"`
	Category  string    `json:"category,omitempty"`
	Priority  *int      `json:"priority,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	IsActive  bool      `json:"is_active"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref returns the graph node of the entry.
func (e *Entry) Ref() NodeRef {
	return NodeRef{Type: e.Type, ID: e.ID}
}

// Key returns the value of the type's key field.
func (e *Entry) Key() string {
	return e.field(e.Type.Trait().KeyField)
}

// SearchableText is the text exclusions are matched against.
func (e *Entry) SearchableText() string {
	parts := []string{e.Name, e.Content}
	if e.Category != "" {
		parts = append(parts, e.Category)
	}
	return strings.Join(parts, "\n")
}

// HasTag reports whether the entry carries tag, ignoring case.
func (e *Entry) HasTag(tag string) bool {
	return slices.ContainsFunc(e.Tags, func(t string) bool {
		return strings.EqualFold(t, tag)
	})
}

func (e *Entry) field(name string) string {
	trait := e.Type.Trait()
	switch name {
	case trait.TitleField:
		return e.Name
	case trait.ContentField:
		return e.Content
	}
	return ""
}

type entryAlias Entry

// MarshalJSON writes the title and content under the type's own field names,
// e.g. "name"/"description" for tools and "title"/"content" for knowledge.
func (e Entry) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(entryAlias(e))
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}

	trait := e.Type.Trait()
	if fields[trait.TitleField], err = json.Marshal(e.Name); err != nil {
		return nil, err
	}
	if fields[trait.ContentField], err = json.Marshal(e.Content); err != nil {
		return nil, err
	}

	return json.Marshal(fields)
}

// UnmarshalJSON reads the representation written by MarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var alias entryAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	trait := alias.Type.Trait()
	if raw, ok := fields[trait.TitleField]; ok {
		if err := json.Unmarshal(raw, &alias.Name); err != nil {
			return fmt.Errorf("field %s: %w", trait.TitleField, err)
		}
	}
	if raw, ok := fields[trait.ContentField]; ok {
		if err := json.Unmarshal(raw, &alias.Content); err != nil {
			return fmt.Errorf("field %s: %w", trait.ContentField, err)
		}
	}

	*e = Entry(alias)
	return nil
}

// EntryFilter selects entries by type, scope and tags. Tags match any of,
// RequireTags all of and ExcludeTags none of the entry tags, ignoring case.
// The lexical index and the vector store apply it to their matches as well.
type EntryFilter struct {
	Types       []EntryType
	Scopes      []Scope
	ActiveOnly  bool
	Tags        []string
	RequireTags []string
	ExcludeTags []string
	Limit       int
	Offset      int
}

// JoinsEntries reports whether the filter reads more than the entry type.
func (f EntryFilter) JoinsEntries() bool {
	return len(f.Scopes) > 0 || f.ActiveOnly || len(f.Tags) > 0 || len(f.RequireTags) > 0 || len(f.ExcludeTags) > 0
}

// StoredEmbedding is the vector stored for one entry.
type StoredEmbedding struct {
	EntryType EntryType `json:"entry_type"`
	EntryID   string    `json:"entry_id"`
	Vector    []float32 `json:"vector"`
	Dimension int       `json:"dimension"`
	Model     string    `json:"model,omitempty"`
}

// LexicalMatches is the result of a lexical index lookup.
type LexicalMatches struct {
	IDsByType map[EntryType][]string `json:"ids_by_type"`
	ScoreByID map[string]float64     `json:"score_by_id"`
}

// NewLexicalMatches returns an empty match set.
func NewLexicalMatches() *LexicalMatches {
	return &LexicalMatches{
		IDsByType: map[EntryType][]string{},
		ScoreByID: map[string]float64{},
	}
}

// Add records a match. The first score recorded for an id wins.
func (m *LexicalMatches) Add(t EntryType, id string, score float64) {
	if _, ok := m.ScoreByID[id]; ok {
		return
	}
	m.IDsByType[t] = append(m.IDsByType[t], id)
	m.ScoreByID[id] = score
}

// Len returns the number of matched ids.
func (m *LexicalMatches) Len() int {
	return len(m.ScoreByID)
}
