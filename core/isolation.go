package core

import (
	"fmt"
	"reflect"
	"sync"
)

// IsolationGuard tracks live contexts and verifies that no two of them, for
// different users, share a mutable map by reference. Registration is an
// explicit contract (register on creation, unregister on cleanup) rather than
// finalizer-based tracking, so leak checks stay deterministic.
//
// Verification walks every live context and compares map identity, which is
// deliberate: this is a defensive, test-observable invariant, not a hot path.
type IsolationGuard struct {
	mu   sync.RWMutex
	live map[*ExecutionContext]struct{}
}

// NewIsolationGuard returns an empty guard.
func NewIsolationGuard() *IsolationGuard {
	return &IsolationGuard{live: map[*ExecutionContext]struct{}{}}
}

// Register adds a context to the live set.
func (g *IsolationGuard) Register(ec *ExecutionContext) {
	if ec == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live[ec] = struct{}{}
}

// Unregister removes a context from the live set. Unknown contexts are a
// no-op, so cleanup paths can call it unconditionally.
func (g *IsolationGuard) Unregister(ec *ExecutionContext) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.live, ec)
}

// Live returns the number of tracked contexts.
func (g *IsolationGuard) Live() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.live)
}

// Verify checks that ec's mutable maps are not the same object as any other
// live context's maps for a different user. On a detected leak it returns an
// ErrContextIsolation wrap naming both correlation ids.
func (g *IsolationGuard) Verify(ec *ExecutionContext) error {
	if ec == nil {
		return nil
	}

	opPtr := mapPointer(ec, opData)
	auditPtr := mapPointer(ec, auditData)

	g.mu.RLock()
	defer g.mu.RUnlock()

	for other := range g.live {
		if other == ec || other.UserID == ec.UserID {
			continue
		}
		if mapPointer(other, opData) == opPtr || mapPointer(other, auditData) == auditPtr {
			return fmt.Errorf("%w: %s shares mutable state with %s",
				ErrContextIsolation, ec.CorrelationID(), other.CorrelationID())
		}
	}
	return nil
}

type mapSelector int

const (
	opData mapSelector = iota
	auditData
)

// mapPointer returns the identity of one of the context's mutable maps.
func mapPointer(ec *ExecutionContext, sel mapSelector) uintptr {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	switch sel {
	case opData:
		return reflect.ValueOf(ec.operationData).Pointer()
	default:
		return reflect.ValueOf(ec.auditMetadata).Pointer()
	}
}
