package identifier

import (
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedIdentifier is returned when a string does not match the
	// structured identifier grammar. Foreign tokens (e.g. raw UUIDs from
	// another subsystem) are rejected rather than coerced.
	ErrMalformedIdentifier = fmt.Errorf("malformed identifier")
)

// Kind categorizes an identifier by the resource it names.
type Kind string

// Supported identifier kinds.
const (
	KindUser       Kind = "user"
	KindSession    Kind = "session"
	KindThread     Kind = "thread"
	KindRun        Kind = "run"
	KindRequest    Kind = "request"
	KindConnection Kind = "connection"
	KindClient     Kind = "client"
	KindAudit      Kind = "audit"
)

var validKinds = map[Kind]bool{
	KindUser:       true,
	KindSession:    true,
	KindThread:     true,
	KindRun:        true,
	KindRequest:    true,
	KindConnection: true,
	KindClient:     true,
	KindAudit:      true,
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool { return validKinds[k] }

// Components holds the parsed fields of a structured identifier.
type Components struct {
	Kind      Kind
	Tag       string
	Timestamp int64 // milliseconds since epoch
	Counter   uint64
	Random    string // 8 lowercase hex chars
	Embedded  string // full parent identifier when the embedding scheme was used
}

// String reassembles the canonical identifier string.
func (c Components) String() string {
	base := fmt.Sprintf("%s_%s_%d_%d_%s", c.Kind, c.Tag, c.Timestamp, c.Counter, c.Random)
	if c.Embedded != "" {
		return base + "." + c.Embedded
	}
	return base
}

// Parse splits and validates a structured identifier. Anything that does not
// match the grammar fails with ErrMalformedIdentifier; callers must treat
// such input as untrusted and reject it.
func Parse(s string) (Components, error) {
	if s == "" {
		return Components{}, fmt.Errorf("%w: empty string", ErrMalformedIdentifier)
	}

	base := s
	embedded := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		base, embedded = s[:idx], s[idx+1:]
		// The embedded parent must itself be a plain (non-embedding) identifier.
		if strings.ContainsRune(embedded, '.') {
			return Components{}, fmt.Errorf("%w: nested embedding in %q", ErrMalformedIdentifier, s)
		}
		if _, err := Parse(embedded); err != nil {
			return Components{}, fmt.Errorf("%w: embedded parent of %q", ErrMalformedIdentifier, s)
		}
	}

	parts := strings.Split(base, "_")
	if len(parts) != 5 {
		return Components{}, fmt.Errorf("%w: expected 5 fields, got %d in %q", ErrMalformedIdentifier, len(parts), s)
	}

	kind := Kind(parts[0])
	if !kind.Valid() {
		return Components{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedIdentifier, parts[0])
	}

	if !validTag(parts[1]) {
		return Components{}, fmt.Errorf("%w: invalid tag %q", ErrMalformedIdentifier, parts[1])
	}

	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || ts < 0 {
		return Components{}, fmt.Errorf("%w: invalid timestamp %q", ErrMalformedIdentifier, parts[2])
	}

	counter, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return Components{}, fmt.Errorf("%w: invalid counter %q", ErrMalformedIdentifier, parts[3])
	}

	if !validRandom(parts[4]) {
		return Components{}, fmt.Errorf("%w: invalid random suffix %q", ErrMalformedIdentifier, parts[4])
	}

	return Components{
		Kind:      kind,
		Tag:       parts[1],
		Timestamp: ts,
		Counter:   counter,
		Random:    parts[4],
		Embedded:  embedded,
	}, nil
}

// Correlate reports whether child can be traced back to parent under either
// supported scheme: embedding of the parent's base form, or the child's
// counter equalling the parent's counter + 1. It is used by cleanup and audit
// paths to decide whether two resources belong together; malformed input on
// either side yields false, never an error.
func Correlate(parent, child string) bool {
	pc, err := Parse(parent)
	if err != nil {
		return false
	}
	cc, err := Parse(child)
	if err != nil {
		return false
	}

	if cc.Embedded != "" && cc.Embedded == baseForm(parent) {
		return true
	}

	return cc.Counter == pc.Counter+1
}

// baseForm strips an identifier's embedded-parent suffix, if any. Minting and
// correlation both work on base forms so embeddings never nest.
func baseForm(s string) string {
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// ValidTag reports whether tag satisfies the grammar's tag field (non-empty
// lowercase alphanumerics and dashes). Callers accepting tags from
// configuration should validate with it before minting, since the generator
// treats an invalid tag as a programming error.
func ValidTag(tag string) bool { return validTag(tag) }

func validTag(tag string) bool {
	if tag == "" {
		return false
	}
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

func validRandom(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
