// Package coordinator sequences one user action on a resource through the
// local cache and the network: optimistic apply, request, then commit or
// rollback, and a toast describing the outcome.
//
// Delete and patch are optimistic: the cache changes before the request and
// is reverted when it fails. Create and update wait for the server and only
// then touch the cache and navigate back to the list.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"orgsync/backend"
	"orgsync/internal/cache"
	"orgsync/internal/notification"
	"orgsync/internal/utils"
)

// MutationKind names the action a pending mutation performs
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
	MutationPatch  MutationKind = "patch"
)

// State is the lifecycle position of one action
type State int

const (
	Idle State = iota
	InFlight
	Committed
	RolledBack
	// Discarded means the response arrived after the owning cache was closed
	Discarded
)

func (s State) String() string {
	switch s {
	case InFlight:
		return "in-flight"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	case Discarded:
		return "discarded"
	default:
		return "idle"
	}
}

var (
	// ErrInFlight is returned when the row already has a mutation in flight
	ErrInFlight = errors.New("a change to this item is already in progress")
	// ErrNotCached is returned when the target row is not in the collection
	ErrNotCached = errors.New("item is not in the loaded collection")
	// ErrDiscarded is returned when the screen was closed before the response
	ErrDiscarded = errors.New("screen closed before the response arrived")
)

// PendingMutation records an action between its request and its response
type PendingMutation[E backend.Entity] struct {
	ID       ulid.ULID
	Target   backend.ID // zero for create
	Kind     MutationKind
	Previous E
	Index    int
	IssuedAt time.Time
}

// Navigator moves the front-end to another route
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(route string)

// Navigate implements Navigator
func (f NavigatorFunc) Navigate(route string) { f(route) }

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}

// Config holds the collaborators of a coordinator
type Config[E backend.Entity] struct {
	Client    backend.ResourceClient[E]
	Cache     *cache.ListCache[E]
	Notifier  notification.Publisher
	Navigator Navigator // nil means no navigation

	// Singular names one entity in toasts, e.g. "task"
	Singular string
	// ListRoute is where create and update navigate on success
	ListRoute string

	Now func() time.Time
}

// Coordinator runs mutations for one mounted screen
type Coordinator[E backend.Entity] struct {
	client    backend.ResourceClient[E]
	cache     *cache.ListCache[E]
	notifier  notification.Publisher
	navigator Navigator
	singular  string
	listRoute string
	now       func() time.Time

	mu      sync.Mutex
	pending map[ulid.ULID]PendingMutation[E]
	busy    map[backend.ID]ulid.ULID
}

// New creates a coordinator
func New[E backend.Entity](cfg Config[E]) (*Coordinator[E], error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("coordinator: client is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("coordinator: cache is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("coordinator: notifier is required")
	}

	c := &Coordinator[E]{
		client:    cfg.Client,
		cache:     cfg.Cache,
		notifier:  cfg.Notifier,
		navigator: cfg.Navigator,
		singular:  cfg.Singular,
		listRoute: cfg.ListRoute,
		now:       cfg.Now,
		pending:   make(map[ulid.ULID]PendingMutation[E]),
		busy:      make(map[backend.ID]ulid.ULID),
	}
	if c.navigator == nil {
		c.navigator = noopNavigator{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.singular == "" {
		c.singular = "item"
	}
	return c, nil
}

// =============================================================================
// Optimistic Actions
// =============================================================================

// Delete removes the row locally, then on the server. A failure puts the row
// back at its former index and publishes one error toast.
func (c *Coordinator[E]) Delete(ctx context.Context, id backend.ID) (State, error) {
	prev, ok := c.cache.Get(id)
	if !ok {
		return Idle, ErrNotCached
	}
	p, err := c.begin(id, MutationDelete, prev, c.cache.IndexOf(id))
	if err != nil {
		return Idle, err
	}
	defer c.finish(p)

	removed, index, ok := c.cache.RemoveByID(id)
	if !ok {
		return Idle, ErrNotCached
	}
	p.Previous, p.Index = removed, index

	err = c.client.Remove(ctx, id)
	if c.cache.Closed() {
		return c.discard(p)
	}
	if err != nil {
		c.cache.Restore(p.Previous, p.Index)
		c.fail(p, "delete", err)
		return RolledBack, err
	}

	c.succeed(p, fmt.Sprintf("%s deleted", capitalize(c.singular)))
	return Committed, nil
}

// Patch applies apply to the cached row, then sends fields. On success the
// row is reconciled with the server's entity, on failure it is reverted and
// one error toast is published. No toast is published on success.
func (c *Coordinator[E]) Patch(ctx context.Context, id backend.ID, fields backend.Fields, apply func(E) E) (E, State, error) {
	var zero E

	prev, ok := c.cache.Get(id)
	if !ok {
		return zero, Idle, ErrNotCached
	}
	p, err := c.begin(id, MutationPatch, prev, c.cache.IndexOf(id))
	if err != nil {
		return zero, Idle, err
	}
	defer c.finish(p)

	if apply != nil {
		c.cache.Replace(id, apply(prev))
	}

	patched, err := c.client.Patch(ctx, id, fields)
	if c.cache.Closed() {
		state, err := c.discard(p)
		return zero, state, err
	}
	if err != nil {
		c.cache.Replace(id, p.Previous)
		c.fail(p, "update", err)
		return zero, RolledBack, err
	}

	c.cache.Replace(id, patched)
	utils.Debugf("mutation %s %s id=%s committed", p.ID, p.Kind, id)
	return patched, Committed, nil
}

// =============================================================================
// Server-first Actions
// =============================================================================

// Create sends fields and, on success, inserts the server's entity with its
// assigned ID and navigates to the list route. A failure leaves the cache
// untouched and publishes one error toast.
func (c *Coordinator[E]) Create(ctx context.Context, fields backend.Fields) (E, State, error) {
	var zero E

	p, err := c.begin(0, MutationCreate, zero, -1)
	if err != nil {
		return zero, Idle, err
	}
	defer c.finish(p)

	created, err := c.client.Create(ctx, fields)
	if c.cache.Closed() {
		state, err := c.discard(p)
		return zero, state, err
	}
	if err != nil {
		c.fail(p, "create", err)
		return zero, RolledBack, err
	}

	c.cache.Insert(created)
	c.succeed(p, fmt.Sprintf("%s created", capitalize(c.singular)))
	c.navigator.Navigate(c.listRoute)
	return created, Committed, nil
}

// Update sends the full set of fields for id and, on success, replaces the
// cached entity and navigates to the list route. A failure keeps the caller
// on its edit screen and publishes one error toast.
func (c *Coordinator[E]) Update(ctx context.Context, id backend.ID, fields backend.Fields) (E, State, error) {
	var zero E

	prev, _ := c.cache.Get(id)
	p, err := c.begin(id, MutationUpdate, prev, c.cache.IndexOf(id))
	if err != nil {
		return zero, Idle, err
	}
	defer c.finish(p)

	updated, err := c.client.Update(ctx, id, fields)
	if c.cache.Closed() {
		state, err := c.discard(p)
		return zero, state, err
	}
	if err != nil {
		c.fail(p, "update", err)
		return zero, RolledBack, err
	}

	if !c.cache.Replace(id, updated) {
		c.cache.Insert(updated)
	}
	c.succeed(p, fmt.Sprintf("%s updated", capitalize(c.singular)))
	c.navigator.Navigate(c.listRoute)
	return updated, Committed, nil
}

// =============================================================================
// Pending Mutations
// =============================================================================

// Pending returns the mutations currently in flight, oldest first
func (c *Coordinator[E]) Pending() []PendingMutation[E] {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]PendingMutation[E], 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Compare(out[j].ID) < 0
	})
	return out
}

// InFlight reports whether id has a mutation awaiting its response
func (c *Coordinator[E]) InFlight(id backend.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.busy[id]
	return ok
}

func (c *Coordinator[E]) begin(id backend.ID, kind MutationKind, prev E, index int) (PendingMutation[E], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != 0 {
		if _, ok := c.busy[id]; ok {
			return PendingMutation[E]{}, ErrInFlight
		}
	}

	p := PendingMutation[E]{
		ID:       ulid.Make(),
		Target:   id,
		Kind:     kind,
		Previous: prev,
		Index:    index,
		IssuedAt: c.now(),
	}
	c.pending[p.ID] = p
	if id != 0 {
		c.busy[id] = p.ID
	}
	utils.Debugf("mutation %s %s id=%s in flight", p.ID, p.Kind, id)
	return p, nil
}

func (c *Coordinator[E]) finish(p PendingMutation[E]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, p.ID)
	if p.Target != 0 && c.busy[p.Target] == p.ID {
		delete(c.busy, p.Target)
	}
}

func (c *Coordinator[E]) discard(p PendingMutation[E]) (State, error) {
	utils.Debugf("mutation %s %s id=%s discarded", p.ID, p.Kind, p.Target)
	return Discarded, ErrDiscarded
}

func (c *Coordinator[E]) succeed(p PendingMutation[E], message string) {
	utils.Debugf("mutation %s %s id=%s committed", p.ID, p.Kind, p.Target)
	c.notifier.Publish(message, notification.SeveritySuccess)
}

func (c *Coordinator[E]) fail(p PendingMutation[E], verb string, err error) {
	utils.Debugf("mutation %s %s id=%s rolled back: %v", p.ID, p.Kind, p.Target, err)
	c.notifier.Publish(fmt.Sprintf("Could not %s %s: %s", verb, c.singular, Describe(err)), notification.SeverityError)
}

// Describe renders err for a toast
func Describe(err error) string {
	if f, ok := backend.AsFailure(err); ok {
		return f.Summary()
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	return err.Error()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
