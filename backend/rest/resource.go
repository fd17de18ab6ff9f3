package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"orgsync/backend"
)

// Resource is the client of one collection, e.g. /api/tasks/.
// It holds no state besides its path; callers own caching.
type Resource[E backend.Entity] struct {
	transport *Transport
	path      string
}

// Compile-time interface checks
var (
	_ backend.ResourceClient[backend.Task]    = (*Resource[backend.Task])(nil)
	_ backend.ResourceClient[backend.Note]    = (*Resource[backend.Note])(nil)
	_ backend.ResourceClient[backend.Expense] = (*Resource[backend.Expense])(nil)
)

// NewResource binds t to the collection at path. Leading and trailing slashes
// are added when missing.
func NewResource[E backend.Entity](t *Transport, path string) *Resource[E] {
	return &Resource[E]{transport: t, path: normalizePath(path)}
}

func normalizePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "/"
	}
	return "/" + p + "/"
}

// Path returns the collection path
func (r *Resource[E]) Path() string {
	return r.path
}

func (r *Resource[E]) itemPath(id backend.ID) string {
	return r.path + id.String() + "/"
}

// =============================================================================
// Collection Operations
// =============================================================================

// List fetches the whole collection in server order. Both a bare JSON array
// and a paginated {"results": [...]} envelope are accepted; only the first
// page of a paginated response is returned.
func (r *Resource[E]) List(ctx context.Context) ([]E, error) {
	var raw json.RawMessage
	if err := r.transport.Do(ctx, http.MethodGet, r.path, nil, &raw); err != nil {
		return nil, err
	}

	items, err := decodeList[E](raw)
	if err != nil {
		return nil, &backend.RequestFailure{
			Kind:       backend.UnknownFailure,
			Method:     http.MethodGet,
			Path:       r.path,
			StatusCode: http.StatusOK,
			RawBody:    raw,
			Cause:      err,
		}
	}
	return items, nil
}

func decodeList[E any](raw json.RawMessage) ([]E, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []E{}, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var items []E
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return items, nil
	}

	var page struct {
		Results *[]E `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if page.Results == nil {
		return nil, fmt.Errorf("decode list: expected an array or an object with results")
	}
	if *page.Results == nil {
		return []E{}, nil
	}
	return *page.Results, nil
}

// Create posts a new entity and returns it with its server-assigned ID
func (r *Resource[E]) Create(ctx context.Context, fields backend.Fields) (E, error) {
	var created E
	if err := r.transport.Do(ctx, http.MethodPost, r.path, fields, &created); err != nil {
		var zero E
		return zero, err
	}
	if err := requireID(created, http.MethodPost, r.path); err != nil {
		var zero E
		return zero, err
	}
	return created, nil
}

// =============================================================================
// Item Operations
// =============================================================================

// Get fetches one entity
func (r *Resource[E]) Get(ctx context.Context, id backend.ID) (E, error) {
	var item E
	if err := r.transport.Do(ctx, http.MethodGet, r.itemPath(id), nil, &item); err != nil {
		var zero E
		return zero, err
	}
	return item, nil
}

// Update replaces every writable field of an entity (PUT)
func (r *Resource[E]) Update(ctx context.Context, id backend.ID, fields backend.Fields) (E, error) {
	var updated E
	if err := r.transport.Do(ctx, http.MethodPut, r.itemPath(id), fields, &updated); err != nil {
		var zero E
		return zero, err
	}
	if err := requireID(updated, http.MethodPut, r.itemPath(id)); err != nil {
		var zero E
		return zero, err
	}
	return updated, nil
}

// Patch changes only the given fields (PATCH)
func (r *Resource[E]) Patch(ctx context.Context, id backend.ID, fields backend.Fields) (E, error) {
	var patched E
	if err := r.transport.Do(ctx, http.MethodPatch, r.itemPath(id), fields, &patched); err != nil {
		var zero E
		return zero, err
	}
	if err := requireID(patched, http.MethodPatch, r.itemPath(id)); err != nil {
		var zero E
		return zero, err
	}
	return patched, nil
}

// Remove deletes an entity. Any 2xx response, including 204, is success.
func (r *Resource[E]) Remove(ctx context.Context, id backend.ID) error {
	return r.transport.Do(ctx, http.MethodDelete, r.itemPath(id), nil, nil)
}

// requireID rejects a success response that does not carry the entity's ID
func requireID[E backend.Entity](e E, method, path string) error {
	if e.GetID() != 0 {
		return nil
	}
	return &backend.RequestFailure{
		Kind:       backend.UnknownFailure,
		Method:     method,
		Path:       path,
		StatusCode: http.StatusOK,
		Cause:      errors.New("response carries no id"),
	}
}
