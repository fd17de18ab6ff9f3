// Package router maps front-end routes to screens. Every protected route
// passes the auth guard once, when it is mounted.
package router

import (
	"context"
	"strings"
	"sync"

	"orgsync/backend"
	"orgsync/internal/auth"
	"orgsync/internal/utils"
)

// Screen identifies what a route displays
type Screen int

const (
	ScreenNotFound Screen = iota
	ScreenHome
	ScreenLogin
	ScreenRegister
	ScreenList
	ScreenCreate
	ScreenEdit
)

func (s Screen) String() string {
	switch s {
	case ScreenHome:
		return "home"
	case ScreenLogin:
		return "login"
	case ScreenRegister:
		return "register"
	case ScreenList:
		return "list"
	case ScreenCreate:
		return "create"
	case ScreenEdit:
		return "edit"
	default:
		return "not-found"
	}
}

// Well-known paths
const (
	HomePath     = "/"
	LoginPath    = "/login"
	RegisterPath = "/register"
)

// Route is a parsed path
type Route struct {
	Path   string
	Screen Screen
	Kind   backend.Kind // list, create and edit screens
	ID     backend.ID   // edit screen
	// Redirect is the protected path that sent the user to login
	Redirect string
}

// Protected reports whether the route requires a signed-in user
func (r Route) Protected() bool {
	switch r.Screen {
	case ScreenLogin, ScreenRegister, ScreenNotFound:
		return false
	}
	return true
}

// ListPath returns the list route of kind
func ListPath(kind backend.Kind) string { return "/" + string(kind) + "/lists" }

// CreatePath returns the create route of kind
func CreatePath(kind backend.Kind) string { return "/" + string(kind) }

// EditPath returns the edit route of one entity
func EditPath(kind backend.Kind, id backend.ID) string {
	return "/" + string(kind) + "/" + id.String()
}

// Parse resolves path to a route without consulting the guard.
// "/<kind>" creates, "/<kind>/lists" lists and "/<kind>/<id>" edits.
func Parse(path string) Route {
	clean := "/" + strings.Trim(strings.TrimSpace(path), "/")
	r := Route{Path: clean}

	switch clean {
	case HomePath:
		r.Screen = ScreenHome
		return r
	case LoginPath:
		r.Screen = ScreenLogin
		return r
	case RegisterPath:
		r.Screen = ScreenRegister
		return r
	}

	parts := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	kind, ok := backend.ParseKind(parts[0])
	if !ok || string(kind) != parts[0] || len(parts) > 2 {
		return r
	}
	r.Kind = kind

	switch {
	case len(parts) == 1:
		r.Screen = ScreenCreate
	case parts[1] == "lists":
		r.Screen = ScreenList
	default:
		id, err := backend.ParseID(parts[1])
		if err != nil || id <= 0 {
			r.Kind = ""
			return r
		}
		r.Screen = ScreenEdit
		r.ID = id
	}
	return r
}

// Gate decides whether a protected route may be entered
type Gate interface {
	Check(ctx context.Context) auth.Decision
}

// Router holds the current route and its history
type Router struct {
	ctx  context.Context
	gate Gate

	mu       sync.Mutex
	current  Route
	history  []Route
	onChange func(Route)
}

// New creates a router positioned nowhere; call Navigate to mount a route
func New(ctx context.Context, gate Gate) *Router {
	return &Router{ctx: ctx, gate: gate}
}

// OnChange registers fn to run after every navigation
func (r *Router) OnChange(fn func(Route)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Resolve parses path and runs the guard once for a protected route. A
// refused route resolves to the login route with Redirect set.
func (r *Router) Resolve(path string) Route {
	route := Parse(path)
	if !route.Protected() || r.gate == nil {
		return route
	}
	if r.gate.Check(r.ctx) == auth.Allow {
		return route
	}
	utils.Debugf("guard refused %s", route.Path)
	login := Parse(LoginPath)
	login.Redirect = route.Path
	return login
}

// Navigate mounts path. It implements coordinator.Navigator.
func (r *Router) Navigate(path string) {
	route := r.Resolve(path)

	r.mu.Lock()
	if r.current.Path != "" {
		r.history = append(r.history, r.current)
	}
	r.current = route
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn(route)
	}
}

// Back returns to the previous route, re-running the guard. It reports false
// when there is no history.
func (r *Router) Back() bool {
	r.mu.Lock()
	if len(r.history) == 0 {
		r.mu.Unlock()
		return false
	}
	prev := r.history[len(r.history)-1]
	r.history = r.history[:len(r.history)-1]
	r.mu.Unlock()

	route := r.Resolve(prev.Path)
	r.mu.Lock()
	r.current = route
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn(route)
	}
	return true
}

// Reload re-resolves the current route in place, re-running the guard, for
// when the stored credentials changed. It reports false when nothing is
// mounted.
func (r *Router) Reload() bool {
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()
	if cur.Path == "" {
		return false
	}

	path := cur.Path
	if cur.Screen == ScreenLogin && cur.Redirect != "" {
		path = cur.Redirect
	}
	route := r.Resolve(path)
	if route.Screen == ScreenLogin && cur.Screen == ScreenLogin {
		// Still signed out; keep the login form as it is
		return true
	}

	r.mu.Lock()
	r.current = route
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn(route)
	}
	return true
}

// Current returns the mounted route
func (r *Router) Current() Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
