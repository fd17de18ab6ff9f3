package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"orgsync/internal/auth"
	"orgsync/internal/router"
)

// credentialForm is the shared field handling of the login and register screens
type credentialForm struct {
	labels []string
	inputs []textinput.Model
	focus  int
	busy   bool
	err    string
}

func newCredentialForm(labels []string, secret map[int]bool) credentialForm {
	f := credentialForm{labels: labels, inputs: make([]textinput.Model, len(labels))}
	for i, label := range labels {
		ti := textinput.New()
		ti.Placeholder = strings.ToLower(label)
		ti.CharLimit = 150
		ti.Width = 32
		if secret[i] {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		f.inputs[i] = ti
	}
	f.inputs[0].Focus()
	return f
}

func (f *credentialForm) value(i int) string {
	return strings.TrimSpace(f.inputs[i].Value())
}

func (f *credentialForm) move(delta int) {
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + delta + len(f.inputs)) % len(f.inputs)
	f.inputs[f.focus].Focus()
}

// update handles navigation keys and reports whether the form was submitted
func (f *credentialForm) update(msg tea.Msg) (tea.Cmd, bool) {
	if f.busy {
		return nil, false
	}
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "down":
			f.move(1)
			return nil, false
		case "shift+tab", "up":
			f.move(-1)
			return nil, false
		case "enter":
			if f.focus < len(f.inputs)-1 {
				f.move(1)
				return nil, false
			}
			return nil, true
		}
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd, false
}

func (f *credentialForm) view(s styles, title string) string {
	var b strings.Builder
	b.WriteString(s.title.Render(title))
	b.WriteString("\n")
	for i, label := range f.labels {
		b.WriteString(fmt.Sprintf("%-18s %s\n", label+":", f.inputs[i].View()))
	}
	if f.busy {
		b.WriteString("\n" + s.muted.Render("Please wait..."))
	} else if f.err != "" {
		b.WriteString("\n" + s.fieldErr.Render(f.err))
	}
	return b.String()
}

func centerDialog(s styles, content string, width, height int) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, s.dialog.Render(content))
}

// =============================================================================
// Login
// =============================================================================

type loginResultMsg struct {
	username string
	err      error
}

type loginView struct {
	env      env
	auth     Authenticator
	redirect string
	form     credentialForm
}

func newLogin(e env, a Authenticator, redirect string) *loginView {
	return &loginView{
		env:      e,
		auth:     a,
		redirect: redirect,
		form:     newCredentialForm([]string{"Username", "Password"}, map[int]bool{1: true}),
	}
}

func (v *loginView) Init() tea.Cmd { return textinput.Blink }

func (v *loginView) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loginResultMsg:
		v.form.busy = false
		if msg.err != nil {
			v.env.toasts.Error("Could not sign in: " + describe(msg.err))
			return nil
		}
		v.env.toasts.Success("Signed in as " + msg.username)
		target := v.redirect
		if target == "" {
			target = router.HomePath
		}
		return v.env.navigate(target)

	case tea.KeyMsg:
		if msg.String() == "ctrl+n" && !v.form.busy {
			return v.env.navigate(router.RegisterPath)
		}
	}

	cmd, submit := v.form.update(msg)
	if !submit {
		return cmd
	}

	username, password := v.form.value(0), v.form.inputs[1].Value()
	if username == "" || password == "" {
		v.form.err = "Username and password are required"
		return nil
	}
	v.form.err = ""
	v.form.busy = true
	ctx, a := v.env.ctx, v.auth
	return v.env.async(func() tea.Msg {
		return loginResultMsg{username: username, err: a.Login(ctx, username, password)}
	})
}

func (v *loginView) View(width, height int) string {
	return centerDialog(v.env.styles, v.form.view(v.env.styles, "Sign in"), width, height)
}

func (v *loginView) Help() string {
	return "tab: next field • enter: sign in • ctrl+n: create account • ctrl+c: quit"
}

func (v *loginView) Close() {}

// =============================================================================
// Register
// =============================================================================

type registerResultMsg struct {
	username string
	err      error
}

type registerView struct {
	env  env
	auth Authenticator
	form credentialForm
}

func newRegister(e env, a Authenticator) *registerView {
	return &registerView{
		env:  e,
		auth: a,
		form: newCredentialForm(
			[]string{"Username", "Email", "Password", "Confirm password"},
			map[int]bool{2: true, 3: true},
		),
	}
}

func (v *registerView) Init() tea.Cmd { return textinput.Blink }

func (v *registerView) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case registerResultMsg:
		v.form.busy = false
		if msg.err != nil {
			v.env.toasts.Error("Could not create account: " + describe(msg.err))
			return nil
		}
		v.env.toasts.Success(fmt.Sprintf("Account %s created. Sign in to continue.", msg.username))
		return v.env.navigate(router.LoginPath)

	case tea.KeyMsg:
		if msg.String() == "esc" && !v.form.busy {
			return v.env.navigate(router.LoginPath)
		}
	}

	cmd, submit := v.form.update(msg)
	if !submit {
		return cmd
	}

	reg := auth.Registration{
		Username:  v.form.value(0),
		Email:     v.form.value(1),
		Password:  v.form.inputs[2].Value(),
		Password2: v.form.inputs[3].Value(),
	}
	if reg.Username == "" || reg.Password == "" {
		v.form.err = "Username and password are required"
		return nil
	}
	if reg.Password != reg.Password2 {
		v.form.err = "Passwords do not match"
		return nil
	}
	v.form.err = ""
	v.form.busy = true
	ctx, a := v.env.ctx, v.auth
	return v.env.async(func() tea.Msg {
		return registerResultMsg{username: reg.Username, err: a.Register(ctx, reg)}
	})
}

func (v *registerView) View(width, height int) string {
	return centerDialog(v.env.styles, v.form.view(v.env.styles, "Create account"), width, height)
}

func (v *registerView) Help() string {
	return "tab: next field • enter: create • esc: back to sign in"
}

func (v *registerView) Close() {}
