// Package operation defines operation records, the synthesizer that builds them
// from extracted entities, and the corpus they are accumulated and persisted in.
package operation

import (
	"fmt"
	"strings"

	"surfacemap-mcp-server/internal/statepath"
)

// CrudKind classifies what an operation does to application data.
type CrudKind string

const (
	Create      CrudKind = "CREATE"
	Read        CrudKind = "READ"
	Update      CrudKind = "UPDATE"
	Delete      CrudKind = "DELETE"
	Unspecified CrudKind = "UNSPECIFIED"
)

// Valid reports whether k is one of the known kinds.
func (k CrudKind) Valid() bool {
	switch k {
	case Create, Read, Update, Delete, Unspecified:
		return true
	}
	return false
}

// ParseCrudKind accepts any casing.
func ParseCrudKind(s string) (CrudKind, error) {
	k := CrudKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown crud kind %q", s)
	}
	return k, nil
}

// EntityKind is the shape of the element an operation was derived from.
type EntityKind string

const (
	EntityTable     EntityKind = "table"
	EntityList      EntityKind = "list"
	EntityGrid      EntityKind = "grid"
	EntityCard      EntityKind = "card"
	EntityForm      EntityKind = "form"
	EntityModalForm EntityKind = "modal_form"
	EntityNone      EntityKind = "none"
)

// IsCollection reports whether k is a collection shape.
func (k EntityKind) IsCollection() bool {
	switch k {
	case EntityTable, EntityList, EntityGrid, EntityCard:
		return true
	}
	return false
}

// Valid reports whether k is one of the known kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityForm, EntityModalForm, EntityNone:
		return true
	}
	return k.IsCollection()
}

// Input is the persisted shape of one form input.
type Input struct {
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Label       string   `json:"label,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// Record is one discovered operation tied to the path that reaches it.
type Record struct {
	Crud        CrudKind       `json:"crud_kind"`
	Entity      EntityKind     `json:"entity_kind"`
	Selector    string         `json:"selector"`
	Inputs      []Input        `json:"inputs"`
	TextSummary string         `json:"text_summary"`
	Path        statepath.Path `json:"path"`
}

// Key identifies a record within a corpus.
func (r Record) Key() string {
	return r.Path.Hash() + "|" + r.Selector
}

// IsFallback reports whether r is the default no-op record.
func (r Record) IsFallback() bool {
	return r.Crud == Unspecified && r.Entity == EntityNone && r.Path.IsRoot()
}

// Fallback returns the default record used when no operation matches.
func Fallback() Record {
	return Record{
		Crud:        Unspecified,
		Entity:      EntityNone,
		Inputs:      []Input{},
		TextSummary: "no matching operation",
		Path:        statepath.Root(),
	}
}
