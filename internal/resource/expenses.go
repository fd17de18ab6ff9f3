package resource

import (
	"strings"

	"orgsync/backend"
	"orgsync/internal/filter"
	"orgsync/internal/utils"
)

// Expenses returns the descriptor of the expenses collection
func Expenses() Descriptor[backend.Expense] {
	categories := make([]string, len(backend.Categories))
	for i, c := range backend.Categories {
		categories[i] = string(c)
	}

	return Descriptor[backend.Expense]{
		Kind:     backend.KindExpense,
		Singular: "expense",
		Title:    "Expenses",
		BasePath: Path(backend.KindExpense),
		Filter: filter.Spec[backend.Expense]{
			Category: func(e backend.Expense) string { return string(e.Category) },
			Searchable: func(e backend.Expense) []string {
				return []string{e.Title, e.Description, e.Category.Label(), e.Amount.String()}
			},
		},
		Categories:    categories,
		CategoryLabel: func(c string) string { return backend.Category(strings.ToLower(c)).Label() },
		Columns: []Column[backend.Expense]{
			{Header: "ID", Value: func(e backend.Expense) string { return e.ID.String() }},
			{Header: "TITLE", Value: func(e backend.Expense) string { return e.Title }},
			{Header: "AMOUNT", Value: func(e backend.Expense) string { return e.Amount.String() }},
			{Header: "CATEGORY", Value: func(e backend.Expense) string { return e.Category.Label() }},
			{Header: "DATE", Value: func(e backend.Expense) string {
				if e.Date == nil {
					return "-"
				}
				return e.Date.String()
			}},
		},
		Form: []FormField{
			{Key: "title", Label: "Title", Type: FieldText, Required: true},
			{Key: "montant", Label: "Amount", Type: FieldAmount, Required: true, Placeholder: "0.00"},
			{Key: "category", Label: "Category", Type: FieldChoice, Required: true, Choices: categories},
			{Key: "description", Label: "Description", Type: FieldMultiline},
			{Key: "date", Label: "Date", Type: FieldDate, Placeholder: "YYYY-MM-DD (default today)"},
		},
		Label: func(e backend.Expense) string { return e.Title },
		ToForm: func(e backend.Expense) map[string]string {
			v := map[string]string{
				"title":       e.Title,
				"montant":     e.Amount.String(),
				"category":    string(e.Category),
				"description": e.Description,
			}
			if e.Date != nil {
				v["date"] = e.Date.String()
			}
			return v
		},
		FromForm: expenseFromForm,
	}
}

func expenseFromForm(values map[string]string) (backend.Fields, error) {
	var errs FormError
	exp := backend.Expense{
		Title:       strings.TrimSpace(values["title"]),
		Description: strings.TrimSpace(values["description"]),
	}
	if exp.Title == "" {
		errs.add("title", "required")
	}

	if raw := strings.TrimSpace(values["montant"]); raw == "" {
		errs.add("montant", "required")
	} else if amount, err := utils.ParseAmountFlag(raw); err != nil {
		errs.add("montant", "must be a non-negative number")
	} else {
		exp.Amount = amount
	}

	if raw := strings.TrimSpace(values["category"]); raw == "" {
		errs.add("category", "required")
	} else if c, err := utils.ParseCategoryFlag(raw); err != nil {
		errs.add("category", "must be one of food, transport, health, other")
	} else {
		exp.Category = c
	}

	date, err := utils.ParseDateFlag(values["date"])
	if err != nil {
		errs.add("date", "invalid date")
	}
	exp.Date = date

	if err := errs.orNil(); err != nil {
		return nil, err
	}
	return exp.Fields(), nil
}
