package resource

import (
	"strings"

	"orgsync/backend"
	"orgsync/internal/filter"
)

// Notes returns the descriptor of the notes collection. Notes have no
// categorical dimension; a category filter is ignored.
func Notes() Descriptor[backend.Note] {
	return Descriptor[backend.Note]{
		Kind:     backend.KindNote,
		Singular: "note",
		Title:    "Notes",
		BasePath: Path(backend.KindNote),
		Filter: filter.Spec[backend.Note]{
			Searchable: func(n backend.Note) []string {
				return []string{n.Title, n.Content}
			},
		},
		Columns: []Column[backend.Note]{
			{Header: "ID", Value: func(n backend.Note) string { return n.ID.String() }},
			{Header: "TITLE", Value: func(n backend.Note) string { return n.Title }},
			{Header: "CONTENT", Value: func(n backend.Note) string { return Excerpt(n.Content, 48) }},
		},
		Form: []FormField{
			{Key: "title", Label: "Title", Type: FieldText, Required: true},
			{Key: "content", Label: "Content", Type: FieldMultiline},
		},
		Label: func(n backend.Note) string { return n.Title },
		ToForm: func(n backend.Note) map[string]string {
			return map[string]string{"title": n.Title, "content": n.Content}
		},
		FromForm: func(values map[string]string) (backend.Fields, error) {
			var errs FormError
			note := backend.Note{
				Title:   strings.TrimSpace(values["title"]),
				Content: values["content"],
			}
			if note.Title == "" {
				errs.add("title", "required")
			}
			if err := errs.orNil(); err != nil {
				return nil, err
			}
			return note.Fields(), nil
		},
	}
}

// Excerpt returns the first line of s cut to max runes
func Excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
