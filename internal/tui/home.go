package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"orgsync/backend"
	"orgsync/internal/resource"
	"orgsync/internal/router"
)

type homeEntry struct {
	label string
	kind  backend.Kind // empty for sign out
}

// homeView is the menu of resource kinds
type homeView struct {
	env     env
	auth    Authenticator
	entries []homeEntry
	cursor  int
}

func newHome(e env, set resource.Set, a Authenticator) *homeView {
	return &homeView{
		env:  e,
		auth: a,
		entries: []homeEntry{
			{label: set.Tasks.Title, kind: backend.KindTask},
			{label: set.Notes.Title, kind: backend.KindNote},
			{label: set.Expenses.Title, kind: backend.KindExpense},
			{label: "Sign out"},
		},
	}
}

func (v *homeView) Init() tea.Cmd { return nil }

func (v *homeView) Update(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch key.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		if v.cursor > 0 {
			v.cursor--
		}
	case "down", "j":
		if v.cursor < len(v.entries)-1 {
			v.cursor++
		}
	case "1", "2", "3":
		v.cursor = int(key.Runes[0] - '1')
		return v.open()
	case "enter", "l", "right":
		return v.open()
	}
	return nil
}

func (v *homeView) open() tea.Cmd {
	entry := v.entries[v.cursor]
	if entry.kind != "" {
		return v.env.navigate(router.ListPath(entry.kind))
	}
	if err := v.auth.Logout(); err != nil {
		v.env.toasts.Error("Could not sign out: " + describe(err))
		return nil
	}
	v.env.toasts.Info("Signed out")
	return v.env.navigate(router.LoginPath)
}

func (v *homeView) View(width, height int) string {
	s := v.env.styles
	var b strings.Builder
	b.WriteString(s.title.Render("orgsync"))
	b.WriteString("\n")
	for i, entry := range v.entries {
		line := entry.label
		if entry.kind != "" {
			line = fmt.Sprintf("%d. %s", i+1, entry.label)
		}
		if i == v.cursor {
			b.WriteString(s.selected.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return centerDialog(s, b.String(), width, height)
}

func (v *homeView) Help() string {
	return "↑/↓: move • enter: open • 1-3: jump • q: quit"
}

func (v *homeView) Close() {}
