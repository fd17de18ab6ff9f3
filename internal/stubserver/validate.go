package stubserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"orgsync/backend"
)

// fieldErrors is a DRF-style validation body: field -> messages
type fieldErrors map[string][]string

func (e fieldErrors) add(field, msg string) {
	e[field] = append(e[field], msg)
}

// document is a decoded request body or stored record
type document map[string]json.RawMessage

func (d document) present(key string) bool {
	v, ok := d[key]
	return ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func (d document) text(key string, errs fieldErrors) string {
	if !d.present(key) {
		return ""
	}
	var s string
	if err := json.Unmarshal(d[key], &s); err != nil {
		errs.add(key, "Not a valid string.")
	}
	return s
}

func (d document) requiredText(key string, errs fieldErrors) string {
	if !d.present(key) {
		errs.add(key, "This field is required.")
		return ""
	}
	s := d.text(key, errs)
	if _, failed := errs[key]; !failed && strings.TrimSpace(s) == "" {
		errs.add(key, "This field may not be blank.")
	}
	return s
}

func (d document) date(key string, errs fieldErrors) *backend.Date {
	s := d.text(key, errs)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parsed, err := backend.ParseDate(s)
	if err != nil {
		errs.add(key, "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		return nil
	}
	return &parsed
}

func (d document) clock(key string, errs fieldErrors) *backend.Clock {
	s := d.text(key, errs)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parsed, err := backend.ParseClock(s)
	if err != nil {
		errs.add(key, "Time has wrong format. Use one of these formats instead: hh:mm[:ss[.uuuuuu]].")
		return nil
	}
	return &parsed
}

func (d document) boolean(key string, errs fieldErrors) bool {
	if !d.present(key) {
		return false
	}
	var b bool
	if err := json.Unmarshal(d[key], &b); err != nil {
		errs.add(key, "Must be a valid boolean.")
	}
	return b
}

func (d document) amount(key string, errs fieldErrors) backend.Amount {
	if !d.present(key) {
		errs.add(key, "This field is required.")
		return 0
	}
	var a backend.Amount
	if err := json.Unmarshal(d[key], &a); err != nil {
		errs.add(key, "A valid number is required.")
		return 0
	}
	if a < 0 {
		errs.add(key, "Ensure this value is greater than or equal to 0.")
	}
	return a
}

// validator checks a complete document and returns the fields to store
type validator func(doc document, now time.Time) (backend.Fields, fieldErrors)

var validators = map[backend.Kind]validator{
	backend.KindTask:    validateTask,
	backend.KindNote:    validateNote,
	backend.KindExpense: validateExpense,
}

func validateTask(doc document, _ time.Time) (backend.Fields, fieldErrors) {
	errs := fieldErrors{}
	task := backend.Task{
		Title:       doc.requiredText("title", errs),
		Description: doc.text("description", errs),
		DueDate:     doc.date("date_for", errs),
		DueTime:     doc.clock("time_for", errs),
		Completed:   doc.boolean("completed", errs),
	}

	_, badDate := errs["date_for"]
	_, badTime := errs["time_for"]
	if !badDate && !badTime {
		if task.DueDate == nil && task.DueTime != nil {
			errs.add("date_for", "A date is required when a time is given.")
		}
		if task.DueTime == nil && task.DueDate != nil {
			errs.add("time_for", "A time is required when a date is given.")
		}
	}
	return task.Fields(), errs
}

func validateNote(doc document, _ time.Time) (backend.Fields, fieldErrors) {
	errs := fieldErrors{}
	note := backend.Note{
		Title:   doc.requiredText("title", errs),
		Content: doc.text("content", errs),
	}
	return note.Fields(), errs
}

func validateExpense(doc document, now time.Time) (backend.Fields, fieldErrors) {
	errs := fieldErrors{}
	exp := backend.Expense{
		Title:       doc.requiredText("title", errs),
		Amount:      doc.amount("montant", errs),
		Description: doc.text("description", errs),
		Date:        doc.date("date", errs),
	}

	category := doc.requiredText("category", errs)
	if _, failed := errs["category"]; !failed {
		exp.Category = backend.Category(strings.ToLower(strings.TrimSpace(category)))
		if !exp.Category.Valid() {
			errs.add("category", fmt.Sprintf("%q is not a valid choice.", category))
		}
	}

	if exp.Date == nil {
		today := backend.Date{Time: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)}
		exp.Date = &today
	}
	return exp.Fields(), errs
}

// merge overlays patch onto base without modifying either
func merge(base, patch document) document {
	out := make(document, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func (e fieldErrors) String() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e[k], " "))
	}
	return strings.Join(parts, "; ")
}
