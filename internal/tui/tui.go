// Package tui provides the interactive terminal front-end: sign-in, a home
// menu, and list and form screens for every resource kind.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"orgsync/backend"
	"orgsync/internal/auth"
	"orgsync/internal/coordinator"
	"orgsync/internal/notification"
	"orgsync/internal/resource"
	"orgsync/internal/router"
	"orgsync/internal/utils"
	"orgsync/internal/watcher"
)

// tickInterval drives toast expiry and redraws optimistic cache changes
const tickInterval = 250 * time.Millisecond

// Clients holds the resource client of each kind
type Clients struct {
	Tasks    backend.ResourceClient[backend.Task]
	Notes    backend.ResourceClient[backend.Note]
	Expenses backend.ResourceClient[backend.Expense]
}

// Authenticator signs users in, up and out
type Authenticator interface {
	Login(ctx context.Context, username, password string) error
	Register(ctx context.Context, r auth.Registration) error
	Logout() error
}

// Config holds what the front-end talks to
type Config struct {
	Resources resource.Set
	Clients   Clients
	Auth      Authenticator
	Gate      router.Gate
	Toasts    *notification.Queue
	// TokenFile is watched; a change re-runs the guard on the mounted route
	TokenFile string
	StartPath string
	// LogOutput receives log lines while the interface owns the terminal.
	// Nil discards them.
	LogOutput io.Writer
}

// Model is the root bubbletea model
type Model struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	router *router.Router
	events chan tea.Msg

	unsubscribe func()
	watcher     *watcher.Watcher

	view  view
	route router.Route
	gen   int

	width  int
	height int
	styles styles
}

// view is one mounted screen
type view interface {
	Init() tea.Cmd
	Update(msg tea.Msg) tea.Cmd
	View(width, height int) string
	Help() string
	Close()
}

// Messages delivered through the events channel
type (
	eventMsg       struct{ msg tea.Msg }
	routeMsg       struct{ route router.Route }
	toastMsg       struct{}
	authChangedMsg struct{}
	tickMsg        time.Time
)

// screenMsg carries an async result back to the screen mounted as gen
type screenMsg struct {
	gen int
	msg tea.Msg
}

// New creates the root model. Close releases it.
func New(parent context.Context, cfg Config) (*Model, error) {
	if cfg.Toasts == nil {
		return nil, errors.New("tui: toast queue is required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("tui: authenticator is required")
	}
	if cfg.StartPath == "" {
		cfg.StartPath = router.HomePath
	}

	ctx, cancel := context.WithCancel(parent)
	m := &Model{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan tea.Msg, 16),
		styles: defaultStyles(),
	}

	m.router = router.New(ctx, cfg.Gate)
	m.router.OnChange(func(r router.Route) { m.send(routeMsg{route: r}) })

	m.unsubscribe = cfg.Toasts.Subscribe(func(notification.Toast) {
		// Redraw only; the view reads Active() itself, so a dropped signal is harmless
		select {
		case m.events <- toastMsg{}:
		default:
		}
	})

	if cfg.TokenFile != "" {
		w, err := watcher.New(watcher.Config{
			Path:     cfg.TokenFile,
			OnChange: func() { m.send(authChangedMsg{}) },
		})
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			utils.Warnf("not watching %s: %v", cfg.TokenFile, err)
		} else {
			m.watcher = w
		}
	}
	return m, nil
}

// Run starts the interactive front-end and blocks until it exits
func Run(ctx context.Context, cfg Config, opts ...tea.ProgramOption) error {
	logger := utils.GetLogger()
	out := cfg.LogOutput
	if out == nil {
		out = io.Discard
	}
	logger.SetOutput(out)
	defer logger.SetOutput(nil)

	m, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	if _, err := tea.NewProgram(m, opts...).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// Close unmounts the current screen and stops background work
func (m *Model) Close() {
	m.cancel()
	if m.view != nil {
		m.view.Close()
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if m.watcher != nil {
		m.watcher.Stop()
	}
}

// Route returns the mounted route
func (m *Model) Route() router.Route {
	return m.route
}

func (m *Model) send(msg tea.Msg) {
	select {
	case m.events <- msg:
	case <-m.ctx.Done():
	}
}

func (m *Model) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return eventMsg{msg: msg}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) env() env {
	return env{ctx: m.ctx, router: m.router, toasts: m.cfg.Toasts, styles: m.styles, gen: m.gen}
}

// Init starts the event listener and mounts the start route
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.listen(), tick(), m.env().navigate(m.cfg.StartPath))
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.cfg.Toasts.Expire()
		return m, tick()

	case eventMsg:
		return m, tea.Batch(m.handleEvent(msg.msg), m.listen())

	case screenMsg:
		if msg.gen != m.gen || m.view == nil {
			return m, nil
		}
		return m, m.view.Update(msg.msg)

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	}

	if m.view == nil {
		return m, nil
	}
	return m, m.view.Update(msg)
}

func (m *Model) handleEvent(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case routeMsg:
		return m.mount(msg.route)
	case authChangedMsg:
		r := m.router
		return func() tea.Msg {
			r.Reload()
			return nil
		}
	}
	return nil
}

// mount closes the current screen and opens the one route displays
func (m *Model) mount(route router.Route) tea.Cmd {
	if m.view != nil {
		m.view.Close()
		m.view = nil
	}
	m.gen++
	m.route = route
	e := m.env()

	var v view
	var err error
	switch route.Screen {
	case router.ScreenHome:
		v = newHome(e, m.cfg.Resources, m.cfg.Auth)
	case router.ScreenLogin:
		v = newLogin(e, m.cfg.Auth, route.Redirect)
	case router.ScreenRegister:
		v = newRegister(e, m.cfg.Auth)
	case router.ScreenList, router.ScreenCreate, router.ScreenEdit:
		v, err = m.mountResource(e, route)
	default:
		m.cfg.Toasts.Error(fmt.Sprintf("Nothing to show at %s", route.Path))
		return e.navigate(router.HomePath)
	}
	if err != nil {
		m.cfg.Toasts.Error(err.Error())
		return e.navigate(router.HomePath)
	}

	utils.Debugf("mounted %s (%s)", route.Path, route.Screen)
	m.view = v
	return v.Init()
}

func (m *Model) mountResource(e env, route router.Route) (view, error) {
	set := m.cfg.Resources
	clients := m.cfg.Clients
	switch route.Kind {
	case backend.KindTask:
		return mountKind(e, route, set.Tasks, clients.Tasks, resource.ToggleCompleted)
	case backend.KindNote:
		return mountKind[backend.Note](e, route, set.Notes, clients.Notes, nil)
	case backend.KindExpense:
		return mountKind[backend.Expense](e, route, set.Expenses, clients.Expenses, nil)
	}
	return nil, fmt.Errorf("unknown resource %q", route.Kind)
}

// View renders the TUI
func (m *Model) View() string {
	width, height := m.width, m.height
	if width == 0 || height == 0 {
		width, height = 80, 24
	}

	header := m.styles.header.Width(width).Render("orgsync  " + m.route.Path)
	toasts := m.renderToasts(width)
	help := ""
	if m.view != nil {
		help = m.view.Help()
	}
	status := m.styles.statusBar.Width(width).Render(help)

	bodyHeight := height - lipgloss.Height(header) - lipgloss.Height(status)
	if toasts != "" {
		bodyHeight -= lipgloss.Height(toasts)
	}
	body := ""
	if m.view != nil {
		body = m.view.View(width, max(bodyHeight, 1))
	}
	body = lipgloss.NewStyle().Height(max(bodyHeight, 1)).MaxHeight(max(bodyHeight, 1)).Render(body)

	parts := []string{header, body}
	if toasts != "" {
		parts = append(parts, toasts)
	}
	parts = append(parts, status)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) renderToasts(width int) string {
	active := m.cfg.Toasts.Active()
	if len(active) == 0 {
		return ""
	}
	lines := make([]string, 0, len(active))
	for _, t := range active {
		lines = append(lines, m.styles.toast(t.Severity).Width(width).Render(toastIcon(t.Severity)+" "+t.Message))
	}
	return strings.Join(lines, "\n")
}

func toastIcon(s notification.Severity) string {
	switch s {
	case notification.SeveritySuccess:
		return "✓"
	case notification.SeverityError:
		return "✗"
	default:
		return "•"
	}
}

// =============================================================================
// Screen environment
// =============================================================================

// env is what every screen may use
type env struct {
	ctx    context.Context
	router *router.Router
	toasts *notification.Queue
	styles styles
	gen    int
}

// navigate runs the router off the update loop, since the guard may refresh
// a token over the network
func (e env) navigate(path string) tea.Cmd {
	r := e.router
	return func() tea.Msg {
		r.Navigate(path)
		return nil
	}
}

// async runs fn off the update loop and routes its result to this screen
func (e env) async(fn func() tea.Msg) tea.Cmd {
	gen := e.gen
	return func() tea.Msg {
		return screenMsg{gen: gen, msg: fn()}
	}
}

// describe renders err for a toast, without the suggestion block of
// user-facing errors
func describe(err error) string {
	msg := coordinator.Describe(err)
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

// =============================================================================
// Styles
// =============================================================================

type styles struct {
	header    lipgloss.Style
	title     lipgloss.Style
	selected  lipgloss.Style
	muted     lipgloss.Style
	help      lipgloss.Style
	fieldErr  lipgloss.Style
	dialog    lipgloss.Style
	statusBar lipgloss.Style
	success   lipgloss.Style
	failure   lipgloss.Style
	info      lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1),
		title: lipgloss.NewStyle().
			Bold(true).
			MarginBottom(1),
		selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		fieldErr: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		dialog: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBar: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Padding(0, 1),
		failure: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Padding(0, 1),
		info: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Padding(0, 1),
	}
}

func (s styles) toast(sev notification.Severity) lipgloss.Style {
	switch sev {
	case notification.SeveritySuccess:
		return s.success
	case notification.SeverityError:
		return s.failure
	default:
		return s.info
	}
}
