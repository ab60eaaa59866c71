package service

import (
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// ActiveCallGate admits at most one presented call at a time.
type ActiveCallGate struct {
	mu       sync.Mutex
	occupied bool
	occupant domain.CallID
	handle   domain.PresentationHandle
}

func NewActiveCallGate() *ActiveCallGate {
	return &ActiveCallGate{}
}

// TryAcquire fails only when a different call holds the gate. Re-acquiring
// for the current occupant replaces its handle.
func (g *ActiveCallGate) TryAcquire(id domain.CallID, handle domain.PresentationHandle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.occupied && g.occupant != id {
		return false
	}
	g.occupied = true
	g.occupant = id
	g.handle = handle
	return true
}

// Release empties the gate if id is the occupant and returns its handle.
// Stale releases are ignored.
func (g *ActiveCallGate) Release(id domain.CallID) (domain.PresentationHandle, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.occupied || g.occupant != id {
		return "", false
	}
	h := g.handle
	g.occupied = false
	g.occupant = domain.CallID{}
	g.handle = ""
	return h, true
}

func (g *ActiveCallGate) CurrentOccupant() (domain.CallID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.occupant, g.occupied
}
