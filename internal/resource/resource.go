// Package resource describes each resource kind to the generic data-sync
// core: collection path, filter behavior, table columns and form fields.
package resource

import (
	"fmt"
	"sort"
	"strings"

	"orgsync/backend"
	"orgsync/internal/filter"
)

// Column is one rendered column of a list
type Column[E backend.Entity] struct {
	Header string
	Value  func(E) string
}

// FieldType selects the input widget and parser of a form field
type FieldType int

const (
	FieldText FieldType = iota
	FieldMultiline
	FieldDate
	FieldTime
	FieldBool
	FieldAmount
	FieldChoice
)

// FormField is one input of a create/edit form
type FormField struct {
	Key         string // JSON field name and form value key
	Label       string
	Type        FieldType
	Required    bool
	Choices     []string // for FieldChoice
	Placeholder string
}

// Descriptor configures the generic core for one resource kind
type Descriptor[E backend.Entity] struct {
	Kind     backend.Kind
	Singular string
	Title    string
	BasePath string

	Filter filter.Spec[E]
	// Categories lists the accepted categorical filter values besides "all".
	// Empty when the resource has no categorical dimension.
	Categories    []string
	CategoryLabel func(string) string

	Columns []Column[E]
	Form    []FormField

	// Label is the one-line display name of an entity
	Label func(E) string
	// ToForm renders an entity into form values keyed by FormField.Key
	ToForm func(E) map[string]string
	// FromForm validates form values and builds the request body
	FromForm func(values map[string]string) (backend.Fields, error)
}

// ValidCategory reports whether c is "all", empty, or one of the descriptor's categories
func (d Descriptor[E]) ValidCategory(c string) bool {
	c = strings.TrimSpace(c)
	if c == "" || strings.EqualFold(c, filter.All) {
		return true
	}
	for _, valid := range d.Categories {
		if strings.EqualFold(c, valid) {
			return true
		}
	}
	return false
}

// DisplayCategory returns the label of a categorical value
func (d Descriptor[E]) DisplayCategory(c string) string {
	if strings.EqualFold(c, filter.All) || c == "" {
		return "All"
	}
	if d.CategoryLabel != nil {
		return d.CategoryLabel(c)
	}
	return c
}

// Visible applies filters with the descriptor's spec
func (d Descriptor[E]) Visible(items []E, f filter.Filters) []E {
	return filter.Visible(items, f, d.Filter)
}

// Render formats rows as table cells, one slice per row
func (d Descriptor[E]) Render(items []E) (headers []string, rows [][]string) {
	headers = make([]string, len(d.Columns))
	for i, c := range d.Columns {
		headers[i] = c.Header
	}
	rows = make([][]string, len(items))
	for r, e := range items {
		row := make([]string, len(d.Columns))
		for i, c := range d.Columns {
			row[i] = c.Value(e)
		}
		rows[r] = row
	}
	return headers, rows
}

// FormError collects field-level problems found before sending
type FormError struct {
	Fields map[string]string
}

// Error implements the error interface
func (e *FormError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, k := range sortedKeys(e.Fields) {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

func (e *FormError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *FormError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set is the descriptor of every resource kind, with paths resolved from config
type Set struct {
	Tasks    Descriptor[backend.Task]
	Notes    Descriptor[backend.Note]
	Expenses Descriptor[backend.Expense]
}

// Defaults returns the descriptors with their default collection paths
func Defaults() Set {
	return Set{
		Tasks:    Tasks(),
		Notes:    Notes(),
		Expenses: Expenses(),
	}
}

// Configured returns the descriptors with collection paths taken from path.
// An empty result keeps the default path.
func Configured(path func(backend.Kind) string) Set {
	s := Defaults()
	if path == nil {
		return s
	}
	if p := path(backend.KindTask); p != "" {
		s.Tasks.BasePath = p
	}
	if p := path(backend.KindNote); p != "" {
		s.Notes.BasePath = p
	}
	if p := path(backend.KindExpense); p != "" {
		s.Expenses.BasePath = p
	}
	return s
}

// Path returns the default collection path of kind
func Path(kind backend.Kind) string {
	return "/api/" + string(kind) + "/"
}
