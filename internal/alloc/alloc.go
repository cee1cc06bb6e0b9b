// Package alloc assigns search zones to drones. Four interchangeable
// policies share one contract; a scenario picks one at construction.
package alloc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/talgya/rescue-sweep/internal/belief"
	"github.com/talgya/rescue-sweep/internal/grid"
	"github.com/talgya/rescue-sweep/internal/trial"
)

// ErrUnknownPolicy is returned for a policy name that is not recognised.
var ErrUnknownPolicy = errors.New("alloc: unknown policy")

// Policy names an allocation strategy.
type Policy string

const (
	Queue          Policy = "queue"     // Shuffled global pool, FIFO
	PartitionTour  Policy = "partition" // One block per drone, nearest-neighbor tour
	GlobalPriority Policy = "global"    // Pool sorted by neighborhood weight
	LocalPriority  Policy = "local"     // Best neighbor of the drone's current zone
)

// Policies lists every supported policy.
var Policies = []Policy{Queue, PartitionTour, GlobalPriority, LocalPriority}

// ParsePolicy converts a name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Policies {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Allocator owns the drone→zone relationship for the lifetime of an
// assignment.
type Allocator interface {
	// Policy returns the strategy in use.
	Policy() Policy
	// Assignment returns the zone currently held by id.
	Assignment(id string) (grid.Zone, bool)
	// Next returns id's assignment, allocating one if none is held.
	// The second result is false when no work is available.
	Next(id string, loc orb.Point) (grid.Zone, bool)
	// Release returns id's held work to the pool.
	Release(id string)
	// Complete drops id's current zone without returning it.
	Complete(id string)
	// Arrived is called when id reaches its assigned zone. It scans the
	// zone unless the policy already did so at allocation time.
	Arrived(id string)
	// Refresh runs once per tick after the belief field diffuses.
	Refresh()
	// Pending returns how many zones wait in the unassigned pool.
	Pending() int
}

// New creates an allocator for the given policy. agents is the fleet size,
// used by the partition policy to size its blocks.
func New(policy Policy, g *grid.Grid, f *belief.Field, st *trial.State, agents int) (Allocator, error) {
	switch policy {
	case Queue:
		return newQueue(g, f, st), nil
	case PartitionTour:
		return newPartition(g, f, agents), nil
	case GlobalPriority:
		return newGlobal(g, f), nil
	case LocalPriority:
		return newLocal(g, f, st), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
}

// held is the single-zone assignment table shared by the pool policies.
type held map[string]grid.Zone

func (h held) get(id string) (grid.Zone, bool) {
	z, ok := h[id]
	return z, ok
}

func (h held) take(id string) (grid.Zone, bool) {
	z, ok := h[id]
	if ok {
		delete(h, id)
	}
	return z, ok
}

// searchable reports whether a zone can ever hold an undiscovered victim.
func searchable(g *grid.Grid, z grid.Zone) bool {
	return !z.Blocked() && !g.IsBaseCovered(z)
}
