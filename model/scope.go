package model

import (
	"strings"

	"github.com/siherrmann/memoria/helper"
)

// ScopeType is one level of the scope chain.
type ScopeType string

const (
	ScopeTypeGlobal  ScopeType = "global"
	ScopeTypeOrg     ScopeType = "org"
	ScopeTypeProject ScopeType = "project"
	ScopeTypeSession ScopeType = "session"
)

// Valid reports whether s is a known scope type.
func (s ScopeType) Valid() bool {
	switch s {
	case ScopeTypeGlobal, ScopeTypeOrg, ScopeTypeProject, ScopeTypeSession:
		return true
	}
	return false
}

// ParentType returns the next broader scope type. Global has none.
func (s ScopeType) ParentType() (ScopeType, bool) {
	switch s {
	case ScopeTypeSession:
		return ScopeTypeProject, true
	case ScopeTypeProject:
		return ScopeTypeOrg, true
	case ScopeTypeOrg:
		return ScopeTypeGlobal, true
	}
	return "", false
}

// Scope identifies where an entry lives. Global scopes have no id.
type Scope struct {
	Type ScopeType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// GlobalScope returns the root scope.
func GlobalScope() Scope {
	return Scope{Type: ScopeTypeGlobal}
}

// NewScope builds and validates a scope.
func NewScope(scopeType ScopeType, id string) (Scope, error) {
	s := Scope{Type: ScopeType(strings.ToLower(string(scopeType))), ID: strings.TrimSpace(id)}
	if s.Type == ScopeTypeGlobal {
		s.ID = ""
	}
	return s, s.Validate()
}

// Validate checks that the type is known and non-global scopes have an id.
func (s Scope) Validate() error {
	if !s.Type.Valid() {
		return helper.Errorf(helper.ErrInvalidInput, "unknown scope type %q", s.Type)
	}
	if s.Type != ScopeTypeGlobal && s.ID == "" {
		return helper.Errorf(helper.ErrInvalidInput, "scope type %q requires a scope id", s.Type)
	}
	return nil
}

// IsGlobal reports whether s is the root scope.
func (s Scope) IsGlobal() bool {
	return s.Type == ScopeTypeGlobal
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return string(s.Type)
	}
	return string(s.Type) + ":" + s.ID
}

// ScopeChain is an ordered scope inheritance chain, most specific first.
type ScopeChain []Scope

// Contains reports whether s is part of the chain.
func (c ScopeChain) Contains(s Scope) bool {
	for _, scope := range c {
		if scope.Type == s.Type && (scope.IsGlobal() || scope.ID == s.ID) {
			return true
		}
	}
	return false
}
