// Package filter derives the visible rows of a collection from a categorical
// predicate and a free-text keyword.
package filter

import (
	"strings"

	"golang.org/x/text/cases"
)

// All is the categorical value that matches every entity
const All = "all"

// Filters is the user's current selection on a list screen
type Filters struct {
	Category string // empty or "all" matches everything
	Keyword  string
}

// IsZero reports whether the filters let every entity through
func (f Filters) IsZero() bool {
	return isAll(f.Category) && strings.TrimSpace(f.Keyword) == ""
}

// Spec describes how one resource kind is matched.
type Spec[E any] struct {
	// Category extracts the categorical value (e.g. "completed", "food").
	// Nil means the resource has no categorical dimension and the predicate
	// is ignored.
	Category func(E) string

	// Searchable renders the fields matched by the keyword, numeric fields
	// in decimal string form.
	Searchable func(E) []string
}

// Visible returns the entities of items that satisfy filters, in order.
// An entity is kept iff its category matches (case-insensitively) and the
// trimmed keyword is empty or a case-folded substring of a searchable field.
// The result is a new slice; items is never modified.
func Visible[E any](items []E, filters Filters, spec Spec[E]) []E {
	folder := cases.Fold()

	category := strings.TrimSpace(filters.Category)
	useCategory := spec.Category != nil && !isAll(category)
	if useCategory {
		category = folder.String(category)
	}

	keyword := strings.TrimSpace(filters.Keyword)
	if keyword != "" {
		keyword = folder.String(keyword)
	}

	out := make([]E, 0, len(items))
	for _, e := range items {
		if useCategory && folder.String(spec.Category(e)) != category {
			continue
		}
		if keyword != "" && !matchesKeyword(folder, spec.Searchable, e, keyword) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchesKeyword[E any](folder cases.Caser, searchable func(E) []string, e E, keyword string) bool {
	if searchable == nil {
		return false
	}
	for _, field := range searchable(e) {
		if strings.Contains(folder.String(field), keyword) {
			return true
		}
	}
	return false
}

func isAll(category string) bool {
	category = strings.TrimSpace(category)
	return category == "" || strings.EqualFold(category, All)
}
