// Package screen binds the data-sync core to one mounted screen: a resource
// client, the screen's own list cache, its mutation coordinator and the
// current filters. Unmounting cancels outstanding requests and closes the
// cache so late responses are dropped.
package screen

import (
	"context"
	"fmt"
	"sync"

	"orgsync/backend"
	"orgsync/internal/cache"
	"orgsync/internal/coordinator"
	"orgsync/internal/filter"
	"orgsync/internal/notification"
	"orgsync/internal/resource"
	"orgsync/internal/utils"
)

// Config holds what a session needs to mount
type Config[E backend.Entity] struct {
	Descriptor resource.Descriptor[E]
	Client     backend.ResourceClient[E]
	Notifier   notification.Publisher
	Navigator  coordinator.Navigator
}

// Session is one mounted instance of a resource screen
type Session[E backend.Entity] struct {
	desc     resource.Descriptor[E]
	client   backend.ResourceClient[E]
	notifier notification.Publisher
	cache    *cache.ListCache[E]
	coord    *coordinator.Coordinator[E]

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	filters filter.Filters
	loaded  bool
}

// Mount creates a session with a fresh cache, bound to a child of parent
func Mount[E backend.Entity](parent context.Context, cfg Config[E]) (*Session[E], error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("mount %s: client is required", cfg.Descriptor.Kind)
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("mount %s: notifier is required", cfg.Descriptor.Kind)
	}

	c := cache.New[E]()
	coord, err := coordinator.New(coordinator.Config[E]{
		Client:    cfg.Client,
		Cache:     c,
		Notifier:  cfg.Notifier,
		Navigator: cfg.Navigator,
		Singular:  cfg.Descriptor.Singular,
		ListRoute: ListRoute(cfg.Descriptor.Kind),
	})
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", cfg.Descriptor.Kind, err)
	}

	ctx, cancel := context.WithCancel(parent)
	utils.Debugf("mounted %s screen", cfg.Descriptor.Kind)
	return &Session[E]{
		desc:     cfg.Descriptor,
		client:   cfg.Client,
		notifier: cfg.Notifier,
		cache:    c,
		coord:    coord,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// ListRoute returns the route of the list screen of kind
func ListRoute(kind backend.Kind) string {
	return "/" + string(kind) + "/lists"
}

// Descriptor returns the resource configuration of the session
func (s *Session[E]) Descriptor() resource.Descriptor[E] { return s.desc }

// Cache returns the session's list cache
func (s *Session[E]) Cache() *cache.ListCache[E] { return s.cache }

// Coordinator returns the session's mutation coordinator
func (s *Session[E]) Coordinator() *coordinator.Coordinator[E] { return s.coord }

// Context is cancelled when the session unmounts
func (s *Session[E]) Context() context.Context { return s.ctx }

// =============================================================================
// Loading
// =============================================================================

// Refresh fetches the full collection and replaces the cached snapshot. A
// failure keeps the previous snapshot and publishes one error toast.
func (s *Session[E]) Refresh() error {
	items, err := s.client.List(s.ctx)
	if s.cache.Closed() {
		return coordinator.ErrDiscarded
	}
	if err != nil {
		s.notifier.Publish(fmt.Sprintf("Could not load %s: %s", s.desc.Kind, coordinator.Describe(err)), notification.SeverityError)
		return err
	}

	s.cache.Load(items)
	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
	utils.Debugf("loaded %d %s", len(items), s.desc.Kind)
	return nil
}

// Loaded reports whether a Refresh succeeded
func (s *Session[E]) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Fetch loads one entity from the server, as the edit screen does on mount,
// and stores it in the cache
func (s *Session[E]) Fetch(id backend.ID) (E, error) {
	e, err := s.client.Get(s.ctx, id)
	if s.cache.Closed() {
		var zero E
		return zero, coordinator.ErrDiscarded
	}
	if err != nil {
		s.notifier.Publish(fmt.Sprintf("Could not load %s: %s", s.desc.Singular, coordinator.Describe(err)), notification.SeverityError)
		var zero E
		return zero, err
	}
	s.cache.Insert(e)
	return e, nil
}

// =============================================================================
// Filters
// =============================================================================

// SetFilters replaces the current filters. An unknown category is rejected.
func (s *Session[E]) SetFilters(f filter.Filters) error {
	if !s.desc.ValidCategory(f.Category) {
		valid := s.desc.Categories
		if len(valid) > 0 {
			valid = append([]string{filter.All}, valid...)
		}
		return utils.ErrInvalidFilter(string(s.desc.Kind), f.Category, valid)
	}
	s.mu.Lock()
	s.filters = f
	s.mu.Unlock()
	return nil
}

// Filters returns the current filters
func (s *Session[E]) Filters() filter.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// Visible derives the displayed rows from the cached snapshot
func (s *Session[E]) Visible() []E {
	return s.desc.Visible(s.cache.Snapshot(), s.Filters())
}

// =============================================================================
// Mutations
// =============================================================================

// Delete removes id optimistically
func (s *Session[E]) Delete(id backend.ID) (coordinator.State, error) {
	return s.coord.Delete(s.ctx, id)
}

// Patch applies a partial change optimistically
func (s *Session[E]) Patch(id backend.ID, fields backend.Fields, apply func(E) E) (E, coordinator.State, error) {
	return s.coord.Patch(s.ctx, id, fields, apply)
}

// Create validates form values and creates the entity
func (s *Session[E]) Create(values map[string]string) (E, coordinator.State, error) {
	fields, err := s.desc.FromForm(values)
	if err != nil {
		var zero E
		return zero, coordinator.Idle, err
	}
	return s.coord.Create(s.ctx, fields)
}

// Update validates form values and replaces every writable field of id
func (s *Session[E]) Update(id backend.ID, values map[string]string) (E, coordinator.State, error) {
	fields, err := s.desc.FromForm(values)
	if err != nil {
		var zero E
		return zero, coordinator.Idle, err
	}
	return s.coord.Update(s.ctx, id, fields)
}

// Close unmounts the session. It is safe to call more than once.
func (s *Session[E]) Close() {
	if s.cache.Closed() {
		return
	}
	s.cancel()
	s.cache.Close()
	utils.Debugf("unmounted %s screen", s.desc.Kind)
}
