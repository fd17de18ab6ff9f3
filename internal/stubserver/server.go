// Package stubserver is a development server speaking the REST contract the
// client expects: JWT token endpoints, registration, and one CRUD collection
// per resource kind stored in SQLite.
package stubserver

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"orgsync/backend"
	"orgsync/backend/sqlite"
	"orgsync/internal/resource"
	"orgsync/internal/utils"
)

// Defaults
const (
	DefaultPageSize        = 20
	DefaultAccessTokenTTL  = 5 * time.Minute
	DefaultRefreshTokenTTL = 24 * time.Hour
	MinPasswordLength      = 8
)

// Config holds stub server settings
type Config struct {
	Secret          []byte // HS256 signing key; random when empty
	Paginate        bool   // wrap lists in {count, next, previous, results}
	PageSize        int
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int
	// Paths maps a kind to its collection path. Missing kinds use the default.
	Paths map[backend.Kind]string
	Now   func() time.Time
}

// Server serves the REST contract over a Store
type Server struct {
	store  *sqlite.Store
	cfg    Config
	router *mux.Router
}

// New creates a server. The store is owned by the caller.
func New(store *sqlite.Store, cfg Config) (*Server, error) {
	if store == nil {
		return nil, errors.New("stubserver: store is required")
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = make([]byte, 32)
		if _, err := rand.Read(cfg.Secret); err != nil {
			return nil, fmt.Errorf("stubserver: generating secret: %w", err)
		}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{store: store, cfg: cfg}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// CollectionPath returns the path kind is served under
func (s *Server) CollectionPath(kind backend.Kind) string {
	if p, ok := s.cfg.Paths[kind]; ok && p != "" {
		return normalizePath(p)
	}
	return resource.Path(kind)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %q not allowed.", req.Method))
	})

	r.HandleFunc("/api/token/", s.handleToken).Methods(http.MethodPost)
	r.HandleFunc("/api/token/refresh/", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/register/", s.handleRegister).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(s.requireAccessToken)
	for _, kind := range backend.Kinds {
		c := collection{server: s, kind: kind, validate: validators[kind]}
		path := s.CollectionPath(kind)
		api.HandleFunc(path, c.list).Methods(http.MethodGet)
		api.HandleFunc(path, c.create).Methods(http.MethodPost)
		item := path + "{id:[0-9]+}/"
		api.HandleFunc(item, c.get).Methods(http.MethodGet)
		api.HandleFunc(item, c.update).Methods(http.MethodPut)
		api.HandleFunc(item, c.patch).Methods(http.MethodPatch)
		api.HandleFunc(item, c.remove).Methods(http.MethodDelete)
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. ready, when non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("stubserver: listen %s: %w", addr, err)
	}
	if ready != nil {
		ready(ln.Addr())
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	utils.Infof("stub server listening on http://%s", ln.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("stubserver: shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}

// =============================================================================
// Helpers
// =============================================================================

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		utils.Debugf("stub: %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Debugf("stub: writing response: %v", err)
	}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeFieldErrors(w http.ResponseWriter, errs fieldErrors) {
	writeJSON(w, http.StatusBadRequest, errs)
}

func normalizePath(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	if p == "" {
		return "/"
	}
	return "/" + p + "/"
}
