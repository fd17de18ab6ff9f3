package cache_test

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"orgsync/backend"
	"orgsync/internal/cache"
)

// =============================================================================
// Test Helpers
// =============================================================================

func note(id backend.ID, title string) backend.Note {
	return backend.Note{ID: id, Title: title}
}

func ids(items []backend.Note) []backend.ID {
	out := make([]backend.ID, len(items))
	for i, n := range items {
		out[i] = n.ID
	}
	return out
}

func newLoaded(t *testing.T, n int) *cache.ListCache[backend.Note] {
	t.Helper()
	c := cache.New[backend.Note]()
	items := make([]backend.Note, n)
	for i := range items {
		items[i] = note(backend.ID(i+1), fmt.Sprintf("note %d", i+1))
	}
	c.Load(items)
	return c
}

// =============================================================================
// Load
// =============================================================================

// TestLoadReplacesSnapshot verifies Load keeps server order and replaces wholesale
func TestLoadReplacesSnapshot(t *testing.T) {
	c := newLoaded(t, 3)
	if got := ids(c.Snapshot()); !reflect.DeepEqual(got, []backend.ID{1, 2, 3}) {
		t.Fatalf("Snapshot ids = %v", got)
	}

	c.Load([]backend.Note{note(9, "nine")})
	if got := ids(c.Snapshot()); !reflect.DeepEqual(got, []backend.ID{9}) {
		t.Errorf("Load should replace wholesale, got %v", got)
	}
}

// TestLoadDeduplicates verifies duplicate identifiers keep first position, last value
func TestLoadDeduplicates(t *testing.T) {
	c := cache.New[backend.Note]()
	c.Load([]backend.Note{note(1, "a"), note(2, "b"), note(1, "a2")})

	snap := c.Snapshot()
	if !reflect.DeepEqual(ids(snap), []backend.ID{1, 2}) {
		t.Fatalf("ids = %v, want [1 2]", ids(snap))
	}
	if snap[0].Title != "a2" {
		t.Errorf("first position should hold last value, got %q", snap[0].Title)
	}
}

// TestLoadForgetsRemovalPositions verifies a reload drops tombstones
func TestLoadForgetsRemovalPositions(t *testing.T) {
	c := newLoaded(t, 3)
	c.RemoveByID(1)
	c.Load([]backend.Note{note(2, "b"), note(3, "c")})

	c.Insert(note(1, "back"))
	if got := ids(c.Snapshot()); !reflect.DeepEqual(got, []backend.ID{2, 3, 1}) {
		t.Errorf("after reload, insert should append, got %v", got)
	}
}

// =============================================================================
// Insert / Replace / Remove
// =============================================================================

// TestInsertAppendsOrReplaces verifies identifiers stay unique
func TestInsertAppendsOrReplaces(t *testing.T) {
	c := newLoaded(t, 2)

	c.Insert(note(3, "new"))
	c.Insert(note(1, "edited"))

	snap := c.Snapshot()
	if !reflect.DeepEqual(ids(snap), []backend.ID{1, 2, 3}) {
		t.Fatalf("ids = %v", ids(snap))
	}
	if snap[0].Title != "edited" {
		t.Errorf("insert of existing id should replace in place, got %q", snap[0].Title)
	}
}

// TestInsertThenRemoveIsIdentity verifies insert(e) then removeById(e.id) restores the collection
func TestInsertThenRemoveIsIdentity(t *testing.T) {
	for n := 0; n < 5; n++ {
		t.Run(fmt.Sprintf("size %d", n), func(t *testing.T) {
			c := newLoaded(t, n)
			before := c.Snapshot()

			c.Insert(note(100, "temp"))
			if _, _, ok := c.RemoveByID(100); !ok {
				t.Fatal("RemoveByID should find the inserted entity")
			}

			if after := c.Snapshot(); !reflect.DeepEqual(before, after) {
				t.Errorf("collection changed: before %v after %v", ids(before), ids(after))
			}
		})
	}
}

// TestRemoveThenReinsertKeepsPosition verifies a row does not jump on re-insert
func TestRemoveThenReinsertKeepsPosition(t *testing.T) {
	for pos := 1; pos <= 4; pos++ {
		t.Run(fmt.Sprintf("id %d", pos), func(t *testing.T) {
			c := newLoaded(t, 4)
			id := backend.ID(pos)

			removed, index, ok := c.RemoveByID(id)
			if !ok || index != pos-1 {
				t.Fatalf("RemoveByID = %v, %d, %v", removed, index, ok)
			}

			c.Insert(note(id, "updated"))
			if got := c.IndexOf(id); got != pos-1 {
				t.Errorf("re-inserted at %d, want %d", got, pos-1)
			}
			if c.Len() != 4 {
				t.Errorf("Len = %d, want 4", c.Len())
			}
		})
	}
}

// TestReinsertFollowsSuccessor verifies position is kept relative to the next row
func TestReinsertFollowsSuccessor(t *testing.T) {
	c := newLoaded(t, 4)
	c.RemoveByID(3)
	c.RemoveByID(1)

	c.Insert(note(3, "c"))
	c.Insert(note(1, "a"))
	if got := ids(c.Snapshot()); !reflect.DeepEqual(got, []backend.ID{1, 2, 3, 4}) {
		t.Errorf("ids = %v, want [1 2 3 4]", got)
	}
}

// TestReplaceAbsentIsNoop verifies replace on a missing id does nothing
func TestReplaceAbsentIsNoop(t *testing.T) {
	c := newLoaded(t, 2)
	before := c.Snapshot()

	if c.Replace(42, note(42, "ghost")) {
		t.Error("Replace should report false for absent id")
	}
	if !reflect.DeepEqual(before, c.Snapshot()) {
		t.Error("Replace of absent id must not change the collection")
	}

	if !c.Replace(2, note(2, "edited")) {
		t.Fatal("Replace should report true for present id")
	}
	if got, _ := c.Get(2); got.Title != "edited" {
		t.Errorf("Get(2).Title = %q", got.Title)
	}
}

// TestReplaceWithDifferentIDKeepsUnique verifies no duplicate identifiers appear
func TestReplaceWithDifferentIDKeepsUnique(t *testing.T) {
	c := newLoaded(t, 3)
	c.Replace(1, note(3, "moved"))

	snap := c.Snapshot()
	if !reflect.DeepEqual(ids(snap), []backend.ID{3, 2}) {
		t.Errorf("ids = %v, want [3 2]", ids(snap))
	}
}

// TestRemoveAbsent verifies removing an unknown id reports false
func TestRemoveAbsent(t *testing.T) {
	c := newLoaded(t, 1)
	if _, index, ok := c.RemoveByID(7); ok || index != -1 {
		t.Errorf("RemoveByID(7) = %d, %v", index, ok)
	}
}

// =============================================================================
// Restore (rollback)
// =============================================================================

// TestRestoreIsIdempotent verifies rollback twice equals rollback once
func TestRestoreIsIdempotent(t *testing.T) {
	c := newLoaded(t, 4)
	removed, index, _ := c.RemoveByID(2)

	c.Restore(removed, index)
	once := c.Snapshot()
	c.Restore(removed, index)
	twice := c.Snapshot()

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("restore not idempotent: %v vs %v", ids(once), ids(twice))
	}
	if !reflect.DeepEqual(ids(once), []backend.ID{1, 2, 3, 4}) {
		t.Errorf("restore should return to index %d, got %v", index, ids(once))
	}
}

// TestRestoreClampsIndex verifies out-of-range indexes are clamped
func TestRestoreClampsIndex(t *testing.T) {
	c := newLoaded(t, 2)
	c.Restore(note(5, "tail"), 99)
	c.Restore(note(6, "head"), -3)

	if got := ids(c.Snapshot()); !reflect.DeepEqual(got, []backend.ID{6, 1, 2, 5}) {
		t.Errorf("ids = %v, want [6 1 2 5]", got)
	}
}

// TestRestoreAdjacentRemovalsInAnyOrder verifies rolling back neighbouring
// removals restores server order whichever rollback lands first
func TestRestoreAdjacentRemovalsInAnyOrder(t *testing.T) {
	tests := []struct {
		name    string
		remove  []backend.ID
		restore []backend.ID
	}{
		{"remove 1 2, restore 1 2", []backend.ID{1, 2}, []backend.ID{1, 2}},
		{"remove 1 2, restore 2 1", []backend.ID{1, 2}, []backend.ID{2, 1}},
		{"remove 2 1, restore 2 1", []backend.ID{2, 1}, []backend.ID{2, 1}},
		{"remove 2 1, restore 1 2", []backend.ID{2, 1}, []backend.ID{1, 2}},
		{"remove 3 2, restore 2 3", []backend.ID{3, 2}, []backend.ID{2, 3}},
		{"remove 1 3, restore 3 1", []backend.ID{1, 3}, []backend.ID{3, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newLoaded(t, 3)
			removed := make(map[backend.ID]backend.Note)
			index := make(map[backend.ID]int)
			for _, id := range tt.remove {
				n, i, ok := c.RemoveByID(id)
				if !ok {
					t.Fatalf("RemoveByID(%d) failed", id)
				}
				removed[id], index[id] = n, i
			}
			for _, id := range tt.restore {
				c.Restore(removed[id], index[id])
			}
			if got := ids(c.Snapshot()); !reflect.DeepEqual(got, []backend.ID{1, 2, 3}) {
				t.Errorf("ids = %v, want [1 2 3]", got)
			}
		})
	}
}

// TestRestoreAfterInsertKeepsNeighbours verifies a row inserted meanwhile
// does not displace a restored one
func TestRestoreAfterInsertKeepsNeighbours(t *testing.T) {
	c := newLoaded(t, 3)
	removed, index, _ := c.RemoveByID(2)
	c.Insert(note(9, "new"))
	c.Restore(removed, index)

	if got := ids(c.Snapshot()); !reflect.DeepEqual(got, []backend.ID{1, 2, 3, 9}) {
		t.Errorf("ids = %v, want [1 2 3 9]", got)
	}
}

// =============================================================================
// Close
// =============================================================================

// TestClosedCacheIgnoresWrites verifies late results cannot touch a torn-down cache
func TestClosedCacheIgnoresWrites(t *testing.T) {
	c := newLoaded(t, 2)
	c.Close()

	if !c.Closed() {
		t.Fatal("Closed() should be true")
	}
	c.Insert(note(3, "late"))
	c.Restore(note(4, "late"), 0)
	c.Load([]backend.Note{note(5, "late")})
	if c.Replace(1, note(1, "late")) {
		t.Error("Replace on closed cache should report false")
	}
	if _, _, ok := c.RemoveByID(1); ok {
		t.Error("RemoveByID on closed cache should report false")
	}
	if c.Len() != 0 {
		t.Errorf("closed cache should be empty, got %d", c.Len())
	}
}

// TestConcurrentWrites verifies identifiers stay unique under concurrent use
func TestConcurrentWrites(t *testing.T) {
	c := newLoaded(t, 10)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := backend.ID(n%10 + 1)
			if removed, index, ok := c.RemoveByID(id); ok {
				c.Restore(removed, index)
			}
			c.Insert(note(id, "x"))
		}(i)
	}
	wg.Wait()

	seen := map[backend.ID]bool{}
	for _, n := range c.Snapshot() {
		if seen[n.ID] {
			t.Fatalf("duplicate id %d", n.ID)
		}
		seen[n.ID] = true
	}
	if len(seen) != 10 {
		t.Errorf("expected 10 unique ids, got %d", len(seen))
	}
}
