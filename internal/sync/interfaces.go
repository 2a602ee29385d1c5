// Package sync implements the differential synchronization engine between the
// AnyList side (id-bearing, authoritative) and the Alexa side (name-only).
// The engine computes per-side change sets between polling cycles, records
// intended mutations in a durable journal before applying them, and resolves
// conflicts with AnyList as the authority.
package sync

import (
	"context"

	"github.com/alexa2anylist/alexa2anylist/internal/types"
)

// PrimaryClient is the AnyList side. Snapshot returns an eventually-consistent
// view of the configured list; it may be served from a cache that a push
// notification invalidates. Mutators retry once after a re-auth before
// surfacing a failure.
type PrimaryClient interface {
	Snapshot(ctx context.Context) (types.List, error)
	Add(ctx context.Context, name string) (types.Item, error)
	Remove(ctx context.Context, id string) error
	Check(ctx context.Context, id string) error
	Uncheck(ctx context.Context, id string) error
	Rename(ctx context.Context, id, name string) error

	// AddOrUncheck creates an unchecked item when no item with the name
	// exists, unchecks it when a checked one exists, and is a no-op
	// otherwise. It returns the resulting item so callers can keep a local
	// view exact without a refetch.
	AddOrUncheck(ctx context.Context, name string) (types.Item, error)
}

// SecondaryDriver is the Alexa side. Snapshot must return the complete list
// (the driver handles scrolling or pagination); it can take seconds, so the
// engine calls it at most twice per cycle. Mutator side effects are only
// observable through subsequent snapshots.
type SecondaryDriver interface {
	Snapshot(ctx context.Context) ([]string, error)
	Add(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newName string) error
}

// Snapshot is a point-in-time view of both lists.
type Snapshot struct {
	Primary   types.List
	Secondary []string
}

// InSync reports whether the active AnyList names equal the Alexa names as
// sets.
func (s Snapshot) InSync() bool {
	active := s.Primary.ActiveNames()
	seen := make(map[string]bool, len(s.Secondary))
	for _, name := range s.Secondary {
		if !active[name] {
			return false
		}
		seen[name] = true
	}
	for name := range active {
		if !seen[name] {
			return false
		}
	}
	return true
}
