package tui

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"orgsync/backend"
	"orgsync/internal/coordinator"
	"orgsync/internal/resource"
	"orgsync/internal/router"
	"orgsync/internal/screen"
)

type (
	fetchedMsg[E any] struct {
		entity E
		err    error
	}
	savedMsg struct{ err error }
)

// formView creates an entity, or edits one when id is set
type formView[E backend.Entity] struct {
	env     env
	session *screen.Session[E]
	id      backend.ID

	fields []resource.FormField
	inputs []textinput.Model
	focus  int
	errors map[string]string

	loading bool
	failed  bool
	saving  bool
}

func newForm[E backend.Entity](e env, sess *screen.Session[E], id backend.ID) *formView[E] {
	fields := sess.Descriptor().Form
	v := &formView[E]{
		env:     e,
		session: sess,
		id:      id,
		fields:  fields,
		inputs:  make([]textinput.Model, len(fields)),
		errors:  map[string]string{},
	}
	for i, f := range fields {
		ti := textinput.New()
		ti.Placeholder = placeholder(f)
		ti.CharLimit = 500
		ti.Width = 48
		v.inputs[i] = ti
	}
	if len(v.inputs) > 0 {
		v.inputs[0].Focus()
	}
	return v
}

func placeholder(f resource.FormField) string {
	if f.Placeholder != "" {
		return f.Placeholder
	}
	switch f.Type {
	case resource.FieldDate:
		return "YYYY-MM-DD"
	case resource.FieldTime:
		return "HH:MM"
	case resource.FieldBool:
		return "y/n"
	case resource.FieldAmount:
		return "0.00"
	case resource.FieldChoice:
		return strings.Join(f.Choices, "|")
	}
	return ""
}

func (v *formView[E]) Init() tea.Cmd {
	if v.id == 0 {
		return textinput.Blink
	}
	v.loading = true
	sess, id := v.session, v.id
	return tea.Batch(textinput.Blink, v.env.async(func() tea.Msg {
		e, err := sess.Fetch(id)
		return fetchedMsg[E]{entity: e, err: err}
	}))
}

func (v *formView[E]) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case fetchedMsg[E]:
		v.loading = false
		if msg.err != nil {
			v.failed = true
			return nil
		}
		values := v.session.Descriptor().ToForm(msg.entity)
		for i, f := range v.fields {
			v.inputs[i].SetValue(values[f.Key])
		}
		return nil

	case savedMsg:
		v.saving = false
		v.showErrors(msg.err)
		return nil

	case tea.KeyMsg:
		if v.saving {
			return nil
		}
		switch msg.String() {
		case "esc":
			return v.env.navigate(router.ListPath(v.session.Descriptor().Kind))
		case "tab", "down":
			v.move(1)
			return nil
		case "shift+tab", "up":
			v.move(-1)
			return nil
		case "ctrl+s":
			return v.submit()
		case "enter":
			if v.focus < len(v.inputs)-1 {
				v.move(1)
				return nil
			}
			return v.submit()
		}
	}

	if v.loading || v.failed || len(v.inputs) == 0 {
		return nil
	}
	var cmd tea.Cmd
	v.inputs[v.focus], cmd = v.inputs[v.focus].Update(msg)
	return cmd
}

func (v *formView[E]) move(delta int) {
	if len(v.inputs) == 0 {
		return
	}
	v.inputs[v.focus].Blur()
	v.focus = (v.focus + delta + len(v.inputs)) % len(v.inputs)
	v.inputs[v.focus].Focus()
}

func (v *formView[E]) values() map[string]string {
	out := make(map[string]string, len(v.fields))
	for i, f := range v.fields {
		out[f.Key] = v.inputs[i].Value()
	}
	return out
}

func (v *formView[E]) submit() tea.Cmd {
	if v.loading || v.failed {
		return nil
	}
	values := v.values()
	if _, err := v.session.Descriptor().FromForm(values); err != nil {
		v.showErrors(err)
		return nil
	}

	v.errors = map[string]string{}
	v.saving = true
	sess, id := v.session, v.id
	return v.env.async(func() tea.Msg {
		var err error
		if id == 0 {
			_, _, err = sess.Create(values)
		} else {
			_, _, err = sess.Update(id, values)
		}
		return savedMsg{err: err}
	})
}

// showErrors puts field messages next to their inputs and focuses the first
// one. Other failures were already raised as toasts.
func (v *formView[E]) showErrors(err error) {
	v.errors = map[string]string{}
	var formErr *resource.FormError
	switch {
	case err == nil, errors.Is(err, coordinator.ErrDiscarded):
		return
	case errors.As(err, &formErr):
		for k, msg := range formErr.Fields {
			v.errors[k] = msg
		}
	default:
		f, ok := backend.AsFailure(err)
		if !ok {
			return
		}
		for k, msgs := range f.Fields {
			v.errors[k] = strings.Join(msgs, " ")
		}
	}

	for i, f := range v.fields {
		if _, bad := v.errors[f.Key]; bad {
			v.inputs[v.focus].Blur()
			v.focus = i
			v.inputs[i].Focus()
			break
		}
	}
}

func (v *formView[E]) title() string {
	desc := v.session.Descriptor()
	if v.id == 0 {
		return "New " + desc.Singular
	}
	return fmt.Sprintf("Edit %s #%s", desc.Singular, v.id)
}

func (v *formView[E]) View(width, height int) string {
	s := v.env.styles
	var b strings.Builder
	b.WriteString(s.title.Render(v.title()))
	b.WriteString("\n")

	switch {
	case v.loading:
		b.WriteString(s.muted.Render("Loading..."))
		return b.String()
	case v.failed:
		b.WriteString(s.fieldErr.Render("This item could not be loaded. Press esc to go back."))
		return b.String()
	}

	for i, f := range v.fields {
		label := f.Label
		if f.Required {
			label += "*"
		}
		b.WriteString(fmt.Sprintf("%-14s %s\n", label, v.inputs[i].View()))
		if msg, bad := v.errors[f.Key]; bad {
			b.WriteString(strings.Repeat(" ", 15) + s.fieldErr.Render(msg) + "\n")
		}
	}
	// Errors on fields the form does not show, e.g. non_field_errors
	for _, k := range slices.Sorted(maps.Keys(v.errors)) {
		if !v.hasField(k) {
			b.WriteString(s.fieldErr.Render(v.errors[k]) + "\n")
		}
	}
	if v.saving {
		b.WriteString("\n" + s.muted.Render("Saving..."))
	}
	return b.String()
}

func (v *formView[E]) hasField(key string) bool {
	for _, f := range v.fields {
		if f.Key == key {
			return true
		}
	}
	return false
}

func (v *formView[E]) Help() string {
	return "tab: next field • ctrl+s: save • esc: cancel"
}

func (v *formView[E]) Close() { v.session.Close() }
