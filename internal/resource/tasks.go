package resource

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"orgsync/backend"
	"orgsync/internal/filter"
	"orgsync/internal/utils"
)

// Task categorical values
const (
	TaskCompleted = "completed"
	TaskPending   = "pending"
)

// Tasks returns the descriptor of the tasks collection
func Tasks() Descriptor[backend.Task] {
	return Descriptor[backend.Task]{
		Kind:     backend.KindTask,
		Singular: "task",
		Title:    "Tasks",
		BasePath: Path(backend.KindTask),
		Filter: filter.Spec[backend.Task]{
			Category: func(t backend.Task) string {
				if t.Completed {
					return TaskCompleted
				}
				return TaskPending
			},
			Searchable: func(t backend.Task) []string {
				return []string{t.Title, t.Description}
			},
		},
		Categories: []string{TaskCompleted, TaskPending},
		CategoryLabel: func(c string) string {
			switch strings.ToLower(c) {
			case TaskCompleted:
				return "Completed"
			case TaskPending:
				return "Pending"
			}
			return c
		},
		Columns: []Column[backend.Task]{
			{Header: "ID", Value: func(t backend.Task) string { return t.ID.String() }},
			{Header: "DONE", Value: func(t backend.Task) string { return checkbox(t.Completed) }},
			{Header: "TITLE", Value: func(t backend.Task) string { return t.Title }},
			{Header: "DUE", Value: formatDue},
			{Header: "REMAINING", Value: func(t backend.Task) string { return TimeRemaining(t, time.Now()) }},
		},
		Form: []FormField{
			{Key: "title", Label: "Title", Type: FieldText, Required: true},
			{Key: "description", Label: "Description", Type: FieldMultiline},
			{Key: "date_for", Label: "Due date", Type: FieldDate, Placeholder: "YYYY-MM-DD, today, +3d"},
			{Key: "time_for", Label: "Due time", Type: FieldTime, Placeholder: "HH:MM"},
			{Key: "completed", Label: "Completed", Type: FieldBool},
		},
		Label: func(t backend.Task) string { return t.Title },
		ToForm: func(t backend.Task) map[string]string {
			v := map[string]string{
				"title":       t.Title,
				"description": t.Description,
				"completed":   strconv.FormatBool(t.Completed),
			}
			if t.DueDate != nil {
				v["date_for"] = t.DueDate.String()
			}
			if t.DueTime != nil {
				v["time_for"] = t.DueTime.Short()
			}
			return v
		},
		FromForm: taskFromForm,
	}
}

func taskFromForm(values map[string]string) (backend.Fields, error) {
	var errs FormError
	task := backend.Task{
		Title:       strings.TrimSpace(values["title"]),
		Description: strings.TrimSpace(values["description"]),
	}
	if task.Title == "" {
		errs.add("title", "required")
	}

	date, err := utils.ParseDateFlag(values["date_for"])
	if err != nil {
		errs.add("date_for", "invalid date")
	}
	clock, err := utils.ParseTimeFlag(values["time_for"])
	if err != nil {
		errs.add("time_for", "invalid time")
	}
	task.DueDate, task.DueTime = date, clock

	// The server refuses a date without a time and the reverse
	if date == nil && clock != nil {
		errs.add("date_for", "a date is required when a time is given")
	}
	if clock == nil && date != nil {
		errs.add("time_for", "a time is required when a date is given")
	}

	if raw := strings.TrimSpace(values["completed"]); raw != "" {
		done, ok := ParseBool(raw)
		if !ok {
			errs.add("completed", "expected yes or no")
		}
		task.Completed = done
	}

	if err := errs.orNil(); err != nil {
		return nil, err
	}
	return task.Fields(), nil
}

// ToggleCompleted returns the patch body flipping t's completion flag and the
// locally applied result
func ToggleCompleted(t backend.Task) (backend.Fields, func(backend.Task) backend.Task) {
	next := !t.Completed
	return backend.Fields{"completed": next}, func(cur backend.Task) backend.Task {
		cur.Completed = next
		return cur
	}
}

// TimeRemaining formats the time left until the task's due date and time
func TimeRemaining(t backend.Task, now time.Time) string {
	if t.DueDate == nil || t.DueTime == nil {
		return "no due date"
	}
	d := t.DueDate.Time
	due := time.Date(d.Year(), d.Month(), d.Day(), t.DueTime.Hour, t.DueTime.Minute, t.DueTime.Second, 0, now.Location())
	remaining := due.Sub(now)
	if remaining <= 0 {
		return "overdue"
	}

	days := int(remaining.Hours()) / 24
	hours := int(remaining.Hours()) % 24
	minutes := int(remaining.Minutes()) % 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}

func formatDue(t backend.Task) string {
	if t.DueDate == nil {
		return "-"
	}
	if t.DueTime == nil {
		return t.DueDate.String()
	}
	return t.DueDate.String() + " " + t.DueTime.Short()
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

// ParseBool accepts true/false, yes/no, y/n, 1/0 and x
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "x", "done":
		return true, true
	case "false", "no", "n", "0", "":
		return false, true
	}
	return false, false
}
