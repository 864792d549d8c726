package identifier

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// Generator mints structured identifiers from a single monotonic counter.
// Two concurrent Mint calls never observe the same counter value. A Generator
// is safe for concurrent use; create one per process (or per test) and inject
// it wherever identifiers are needed instead of reaching for ad hoc random
// generation.
//
// The counter is unsigned and wraps only past 2^64 mints. Wraparound within a
// process lifetime is a fatal precondition violation, not a condition the
// generator masks.
type Generator struct {
	counter atomic.Uint64
}

// NewGenerator returns a Generator with its counter at zero.
func NewGenerator() *Generator {
	return &Generator{}
}

// Mint constructs a fresh identifier of the given kind. The tag must satisfy
// the grammar (lowercase alphanumerics and dashes); Mint panics on a tag the
// parser would reject, since that is a caller bug, not runtime input.
func (g *Generator) Mint(kind Kind, tag string) string {
	return g.mint(kind, tag, "")
}

// MintChild constructs an identifier that embeds the parent's base form,
// making the parent/child relation provable by inspection alone. A parent
// that itself embeds is reduced to its base first, so identifiers never nest
// embeddings and every minted identifier satisfies Parse.
func (g *Generator) MintChild(kind Kind, tag, parent string) string {
	return g.mint(kind, tag, baseForm(parent))
}

// MintTriplet mints the correlated (thread, run, request) triplet consumed by
// the registry when establishing a new session. The run embeds the thread and
// its counter is thread+1; the request counter is thread+2. A block of three
// counter values is reserved atomically so concurrent triplets never
// interleave and both correlation schemes hold for every minted triplet.
func (g *Generator) MintTriplet(tag string) (thread, run, request string) {
	base := g.counter.Add(3)
	thread = g.mintAt(KindThread, tag, "", base-2)
	run = g.mintAt(KindRun, tag, thread, base-1)
	request = g.mintAt(KindRequest, tag, "", base)
	return thread, run, request
}

// Counter exposes the current counter value for diagnostics and tests.
func (g *Generator) Counter() uint64 { return g.counter.Load() }

func (g *Generator) mint(kind Kind, tag, parent string) string {
	return g.mintAt(kind, tag, parent, g.counter.Add(1))
}

func (g *Generator) mintAt(kind Kind, tag, parent string, counter uint64) string {
	if !kind.Valid() {
		panic(fmt.Sprintf("identifier: mint with unknown kind %q", kind))
	}
	if !validTag(tag) {
		panic(fmt.Sprintf("identifier: mint with invalid tag %q", tag))
	}

	c := Components{
		Kind:      kind,
		Tag:       tag,
		Timestamp: time.Now().UnixMilli(),
		Counter:   counter,
		Random:    randomSuffix(),
		Embedded:  parent,
	}

	return c.String()
}

func randomSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms; treat it as fatal.
		panic(fmt.Sprintf("identifier: random source unavailable: %v", err))
	}
	return hex.EncodeToString(b[:])
}
