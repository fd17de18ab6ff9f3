// Package backend defines the entity model shared by every resource kind and
// the contract a resource client must satisfy.
package backend

import (
	"context"
	"strings"
)

// Kind names a resource collection
type Kind string

const (
	KindTask    Kind = "tasks"
	KindNote    Kind = "notes"
	KindExpense Kind = "expenses"
)

// Kinds lists the resource kinds in display order
var Kinds = []Kind{KindTask, KindNote, KindExpense}

// ParseKind resolves a kind from its collection name (case-insensitive).
// Singular forms are accepted.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds {
		if s == string(k) || s+"s" == string(k) {
			return k, true
		}
	}
	return "", false
}

// Fields maps a JSON field name to its value. It is the body of create,
// update and patch requests.
type Fields map[string]any

// Entity is one record of a resource kind
type Entity interface {
	GetID() ID
}

// Task represents a todo item
type Task struct {
	ID          ID     `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     *Date  `json:"date_for"`
	DueTime     *Clock `json:"time_for"`
	Completed   bool   `json:"completed"`
}

// GetID implements Entity
func (t Task) GetID() ID { return t.ID }

// Fields returns the writable fields of the task
func (t Task) Fields() Fields {
	f := Fields{
		"title":       t.Title,
		"description": t.Description,
		"completed":   t.Completed,
		"date_for":    nil,
		"time_for":    nil,
	}
	if t.DueDate != nil {
		f["date_for"] = t.DueDate.String()
	}
	if t.DueTime != nil {
		f["time_for"] = t.DueTime.String()
	}
	return f
}

// Note represents a free-form note
type Note struct {
	ID      ID     `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// GetID implements Entity
func (n Note) GetID() ID { return n.ID }

// Fields returns the writable fields of the note
func (n Note) Fields() Fields {
	return Fields{
		"title":   n.Title,
		"content": n.Content,
	}
}

// Category is the fixed enumeration of expense categories
type Category string

const (
	CategoryFood      Category = "food"
	CategoryTransport Category = "transport"
	CategoryHealth    Category = "health"
	CategoryOther     Category = "other"
)

// Categories lists the valid expense categories in display order
var Categories = []Category{CategoryFood, CategoryTransport, CategoryHealth, CategoryOther}

var categoryLabels = map[Category]string{
	CategoryFood:      "Nourriture",
	CategoryTransport: "Transport",
	CategoryHealth:    "Santé",
	CategoryOther:     "Autre",
}

// Label returns the display label of the category, or the raw key when unknown
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Expense represents a spending record
type Expense struct {
	ID          ID       `json:"id"`
	Title       string   `json:"title"`
	Amount      Amount   `json:"montant"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Date        *Date    `json:"date"`
}

// GetID implements Entity
func (e Expense) GetID() ID { return e.ID }

// Fields returns the writable fields of the expense
func (e Expense) Fields() Fields {
	f := Fields{
		"title":       e.Title,
		"montant":     e.Amount.Float(),
		"category":    string(e.Category),
		"description": e.Description,
	}
	if e.Date != nil {
		f["date"] = e.Date.String()
	}
	return f
}

// ResourceClient is the typed accessor for one resource collection.
// Each call is one network round trip; failures are *RequestFailure values.
type ResourceClient[E Entity] interface {
	List(ctx context.Context) ([]E, error)
	Get(ctx context.Context, id ID) (E, error)
	Create(ctx context.Context, fields Fields) (E, error)
	Update(ctx context.Context, id ID, fields Fields) (E, error)
	Patch(ctx context.Context, id ID, fields Fields) (E, error)
	Remove(ctx context.Context, id ID) error
}
