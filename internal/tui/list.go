package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"orgsync/backend"
	"orgsync/internal/coordinator"
	"orgsync/internal/filter"
	"orgsync/internal/resource"
	"orgsync/internal/router"
	"orgsync/internal/screen"
)

// maxColumnWidth truncates long cells such as note contents
const maxColumnWidth = 40

// toggleFunc builds the patch body and local change of a quick toggle
type toggleFunc[E backend.Entity] func(E) (backend.Fields, func(E) E)

func mountKind[E backend.Entity](e env, route router.Route, desc resource.Descriptor[E], client backend.ResourceClient[E], toggle toggleFunc[E]) (view, error) {
	if client == nil {
		return nil, fmt.Errorf("no client configured for %s", desc.Kind)
	}
	sess, err := screen.Mount(e.ctx, screen.Config[E]{
		Descriptor: desc,
		Client:     client,
		Notifier:   e.toasts,
		Navigator:  e.router,
	})
	if err != nil {
		return nil, err
	}
	switch route.Screen {
	case router.ScreenCreate:
		return newForm(e, sess, 0), nil
	case router.ScreenEdit:
		return newForm(e, sess, route.ID), nil
	default:
		return newList(e, sess, toggle), nil
	}
}

type listMode int

const (
	listBrowse listMode = iota
	listSearch
	listConfirmDelete
)

type (
	loadedMsg  struct{ err error }
	mutatedMsg struct{ err error }
)

// listView shows one resource collection with its filters
type listView[E backend.Entity] struct {
	env     env
	session *screen.Session[E]
	toggle  toggleFunc[E]

	mode    listMode
	cursor  int
	search  textinput.Model
	loading bool
}

func newList[E backend.Entity](e env, sess *screen.Session[E], toggle toggleFunc[E]) *listView[E] {
	ti := textinput.New()
	ti.Placeholder = "search"
	ti.Prompt = "/"
	ti.CharLimit = 100
	return &listView[E]{env: e, session: sess, toggle: toggle, search: ti}
}

func (v *listView[E]) Init() tea.Cmd {
	v.loading = true
	return v.refresh()
}

func (v *listView[E]) refresh() tea.Cmd {
	sess := v.session
	return v.env.async(func() tea.Msg { return loadedMsg{err: sess.Refresh()} })
}

func (v *listView[E]) selected() (E, bool) {
	rows := v.session.Visible()
	if len(rows) == 0 {
		var zero E
		return zero, false
	}
	v.cursor = clamp(v.cursor, 0, len(rows)-1)
	return rows[v.cursor], true
}

func (v *listView[E]) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadedMsg:
		v.loading = false
		return nil
	case mutatedMsg:
		if errors.Is(msg.err, coordinator.ErrInFlight) {
			v.env.toasts.Info(msg.err.Error())
		}
		return nil
	case tea.KeyMsg:
		switch v.mode {
		case listSearch:
			return v.updateSearch(msg)
		case listConfirmDelete:
			return v.updateConfirm(msg)
		default:
			return v.updateBrowse(msg)
		}
	}
	if v.mode == listSearch {
		var cmd tea.Cmd
		v.search, cmd = v.search.Update(msg)
		return cmd
	}
	return nil
}

func (v *listView[E]) updateBrowse(key tea.KeyMsg) tea.Cmd {
	desc := v.session.Descriptor()
	switch key.String() {
	case "q":
		return tea.Quit
	case "esc", "h", "left":
		return v.env.navigate(router.HomePath)
	case "up", "k":
		if v.cursor > 0 {
			v.cursor--
		}
	case "down", "j":
		if n := len(v.session.Visible()); v.cursor < n-1 {
			v.cursor++
		}
	case "/":
		v.mode = listSearch
		v.search.SetValue(v.session.Filters().Keyword)
		v.search.CursorEnd()
		return v.search.Focus()
	case "f":
		v.cycleCategory()
	case "r":
		v.loading = true
		return v.refresh()
	case "a", "n":
		return v.env.navigate(router.CreatePath(desc.Kind))
	case "e", "enter":
		if item, ok := v.selected(); ok {
			return v.env.navigate(router.EditPath(desc.Kind, item.GetID()))
		}
	case "d", "delete":
		if _, ok := v.selected(); ok {
			v.mode = listConfirmDelete
		}
	case " ", "c":
		return v.toggleSelected()
	}
	return nil
}

func (v *listView[E]) updateSearch(key tea.KeyMsg) tea.Cmd {
	switch key.Type {
	case tea.KeyEnter:
		v.mode = listBrowse
		v.search.Blur()
		return nil
	case tea.KeyEsc:
		v.mode = listBrowse
		v.search.Blur()
		v.search.SetValue("")
		v.applyKeyword("")
		return nil
	}
	var cmd tea.Cmd
	v.search, cmd = v.search.Update(key)
	v.applyKeyword(v.search.Value())
	return cmd
}

func (v *listView[E]) applyKeyword(keyword string) {
	f := v.session.Filters()
	f.Keyword = keyword
	_ = v.session.SetFilters(f)
	v.cursor = 0
}

func (v *listView[E]) cycleCategory() {
	desc := v.session.Descriptor()
	if len(desc.Categories) == 0 {
		return
	}
	options := append([]string{filter.All}, desc.Categories...)
	f := v.session.Filters()
	next := 0
	for i, c := range options {
		if strings.EqualFold(c, f.Category) || (c == filter.All && f.Category == "") {
			next = (i + 1) % len(options)
			break
		}
	}
	f.Category = options[next]
	if err := v.session.SetFilters(f); err != nil {
		v.env.toasts.Error(describe(err))
		return
	}
	v.cursor = 0
}

func (v *listView[E]) updateConfirm(key tea.KeyMsg) tea.Cmd {
	v.mode = listBrowse
	if key.String() != "y" && key.String() != "Y" {
		return nil
	}
	item, ok := v.selected()
	if !ok {
		return nil
	}
	sess, id := v.session, item.GetID()
	return v.env.async(func() tea.Msg {
		_, err := sess.Delete(id)
		return mutatedMsg{err: err}
	})
}

func (v *listView[E]) toggleSelected() tea.Cmd {
	if v.toggle == nil {
		return nil
	}
	item, ok := v.selected()
	if !ok {
		return nil
	}
	fields, apply := v.toggle(item)
	sess, id := v.session, item.GetID()
	return v.env.async(func() tea.Msg {
		_, _, err := sess.Patch(id, fields, apply)
		return mutatedMsg{err: err}
	})
}

func (v *listView[E]) View(width, height int) string {
	s := v.env.styles
	desc := v.session.Descriptor()
	rows := v.session.Visible()
	v.cursor = clamp(v.cursor, 0, max(len(rows)-1, 0))

	var b strings.Builder
	b.WriteString(s.title.Render(desc.Title))
	b.WriteString("\n")
	b.WriteString(v.filterLine())
	b.WriteString("\n\n")

	switch {
	case v.loading && !v.session.Loaded():
		b.WriteString(s.muted.Render("Loading..."))
	case len(rows) == 0:
		if v.session.Filters().IsZero() {
			b.WriteString(s.muted.Render(fmt.Sprintf("No %s yet. Press a to add one.", desc.Kind)))
		} else {
			b.WriteString(s.muted.Render(fmt.Sprintf("No %s match the filters.", desc.Kind)))
		}
	default:
		b.WriteString(v.table(rows, height-5))
	}

	if v.mode == listConfirmDelete {
		if item, ok := v.selected(); ok {
			prompt := fmt.Sprintf("Delete %s \"%s\"? (y/n)", desc.Singular, desc.Label(item))
			return centerDialog(s, prompt, width, height)
		}
	}
	return b.String()
}

func (v *listView[E]) filterLine() string {
	s := v.env.styles
	desc := v.session.Descriptor()
	f := v.session.Filters()

	var parts []string
	if len(desc.Categories) > 0 {
		parts = append(parts, "Filter: "+desc.DisplayCategory(f.Category))
	}
	if v.mode == listSearch {
		parts = append(parts, v.search.View())
	} else if f.Keyword != "" {
		parts = append(parts, "Search: "+f.Keyword)
	}
	return s.muted.Render(strings.Join(parts, "  "))
}

func (v *listView[E]) table(items []E, room int) string {
	s := v.env.styles
	headers, cells := v.session.Descriptor().Render(items)

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range cells {
		for i, c := range row {
			widths[i] = min(max(widths[i], lipgloss.Width(c)), maxColumnWidth)
		}
	}

	format := func(row []string) string {
		out := make([]string, len(row))
		for i, c := range row {
			c = truncate(c, widths[i])
			out[i] = c + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
		}
		return strings.Join(out, "  ")
	}

	room = max(room, 1)
	start := 0
	if v.cursor >= room {
		start = v.cursor - room + 1
	}
	end := min(start+room, len(cells))

	var b strings.Builder
	b.WriteString(s.muted.Render("  " + format(headers)))
	for i := start; i < end; i++ {
		b.WriteString("\n")
		line := format(cells[i])
		if v.session.Coordinator().InFlight(items[i].GetID()) {
			line += " …"
		}
		if i == v.cursor {
			b.WriteString(s.selected.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
	}
	return b.String()
}

func (v *listView[E]) Help() string {
	switch v.mode {
	case listSearch:
		return "type to search • enter: keep • esc: clear"
	case listConfirmDelete:
		return "y: delete • any other key: cancel"
	}
	help := "↑/↓: move • a: add • e: edit • d: delete • /: search"
	if len(v.session.Descriptor().Categories) > 0 {
		help += " • f: filter"
	}
	if v.toggle != nil {
		help += " • space: toggle"
	}
	return help + " • r: refresh • esc: home"
}

func (v *listView[E]) Close() { v.session.Close() }

func clamp(n, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(n, lo), hi)
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
