// Package resource describes the content kinds managed by the dashboard and
// CLI. A Kind is the schema that drives generic list, detail and form screens.
package resource

import (
	"fmt"
	"sort"
	"strings"
)

// FieldType determines how a field is rendered and parsed
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeTextarea FieldType = "textarea"
	TypeURL      FieldType = "url"
	TypeEmail    FieldType = "email"
	TypeInt      FieldType = "int"
	TypeDecimal  FieldType = "decimal"
	TypeBool     FieldType = "bool"
	TypeDateTime FieldType = "datetime"
)

// Field is one attribute of a content kind
type Field struct {
	Name     string
	Label    string
	Type     FieldType
	Required bool
	// List marks fields shown as columns on list screens
	List bool
	// ReadOnly fields are shown on detail screens but never submitted
	ReadOnly bool
	// Nullable fields are sent as null when left empty
	Nullable bool
}

// Item is a single record as exchanged with the API
type Item map[string]any

// ID returns the record's identifier
func (i Item) ID() string {
	if id, ok := i["id"].(string); ok {
		return id
	}
	return ""
}

// Kind is the schema of one content type
type Kind struct {
	Slug     string // URL segment, e.g. "hero-banners"
	Title    string // plural display name
	Singular string
	APIPath  string
	Fields   []Field
	// TitleField names the field used as a record's display label
	TitleField string
	// Singleton kinds have exactly one record and no list screen
	Singleton bool
	// NoCreate kinds are created elsewhere (contacts come from the public site)
	NoCreate bool
}

// Field looks up a field by name
func (k *Kind) Field(name string) (Field, bool) {
	for _, f := range k.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns returns the fields shown on list screens
func (k *Kind) Columns() []Field {
	var cols []Field
	for _, f := range k.Fields {
		if f.List {
			cols = append(cols, f)
		}
	}
	return cols
}

// Editable returns the fields a form submits
func (k *Kind) Editable() []Field {
	var out []Field
	for _, f := range k.Fields {
		if !f.ReadOnly {
			out = append(out, f)
		}
	}
	return out
}

// Label returns the display label of an item
func (k *Kind) Label(item Item) string {
	if v, ok := item[k.TitleField]; ok && v != nil {
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	return item.ID()
}

var registry = map[string]*Kind{}

func register(k *Kind) {
	if _, exists := registry[k.Slug]; exists {
		panic("resource: duplicate kind " + k.Slug)
	}
	registry[k.Slug] = k
}

// Lookup returns the kind registered under slug
func Lookup(slug string) (*Kind, bool) {
	k, ok := registry[strings.ToLower(slug)]
	return k, ok
}

// All returns every registered kind ordered by slug
func All() []*Kind {
	kinds := make([]*Kind, 0, len(registry))
	for _, k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Slug < kinds[j].Slug })
	return kinds
}

// Collections returns the non-singleton kinds ordered by slug
func Collections() []*Kind {
	var out []*Kind
	for _, k := range All() {
		if !k.Singleton {
			out = append(out, k)
		}
	}
	return out
}

// Slugs returns the slugs of all collection kinds
func Slugs() []string {
	var out []string
	for _, k := range Collections() {
		out = append(out, k.Slug)
	}
	return out
}
