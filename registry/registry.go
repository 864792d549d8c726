package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/identifier"
	"github.com/hupe1980/agentcore/logging"
)

// DefaultSessionTTL bounds how long an idle session record stays resolvable.
const DefaultSessionTTL = 30 * time.Minute

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// SessionTTL is the idle lifetime of a session record. Zero falls back
	// to DefaultSessionTTL.
	SessionTTL time.Duration
	// OperationTag is stamped into every identifier minted by the registry.
	OperationTag string
	// Audit receives a record for every session creation. Optional.
	Audit core.AuditRecorder
	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
}

// record is the registry-internal session state for one (user, thread) key.
// Mutated only under the registry's lock.
type record struct {
	userID        string
	threadID      string
	runID         string
	lastRequestID string
	expiresAt     time.Time
}

// Registry maps (user, thread) keys to live session records and builds
// execution contexts from them. Safe for concurrent use.
type Registry struct {
	ids    *identifier.Generator
	ttl    time.Duration
	tag    string
	audit  core.AuditRecorder
	logger logging.Logger

	mu      sync.RWMutex
	records map[string]*record

	// group collapses concurrent creations for the same key into one.
	group singleflight.Group
}

// New constructs a Registry bound to the given identifier generator.
func New(ids *identifier.Generator, optFns ...func(o *Options)) *Registry {
	opts := Options{
		SessionTTL:   DefaultSessionTTL,
		OperationTag: "chat",
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if !identifier.ValidTag(opts.OperationTag) {
		opts.Logger.Warn("registry falling back to default operation tag: %q does not satisfy the tag grammar", opts.OperationTag)
		opts.OperationTag = "chat"
	}

	return &Registry{
		ids:     ids,
		ttl:     opts.SessionTTL,
		tag:     opts.OperationTag,
		audit:   opts.Audit,
		logger:  opts.Logger,
		records: make(map[string]*record),
	}
}

// GetOrCreate resolves the session for (userID, threadID) and returns a root
// context carrying its run identity plus a freshly minted request id.
//
// With a known, non-expired key the existing run id is reused (session
// continuity). With an empty threadID, or a key that is absent or expired, a
// new correlated triplet is minted and a session record created; concurrent
// creations for the same key collapse into exactly one winner whose result
// all callers observe. A supplied threadID that fails the identifier grammar
// is rejected as untrusted input.
func (r *Registry) GetOrCreate(ctx context.Context, userID, threadID string) (*core.ExecutionContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := core.ValidateUserID(userID); err != nil {
		return nil, err
	}

	if threadID != "" {
		if _, err := identifier.Parse(threadID); err != nil {
			return nil, fmt.Errorf("thread id: %w", err)
		}

		r.mu.RLock()
		rec, ok := r.records[sessionKey(userID, threadID)]
		expired := ok && !time.Now().Before(rec.expiresAt)
		r.mu.RUnlock()

		if ok && !expired {
			return r.buildContext(userID, rec)
		}
	}

	rec, err := r.create(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}

	return r.buildContext(userID, rec)
}

// create establishes the session record for (userID, threadID). An empty
// threadID starts its own conversation, so there is no key to collapse on and
// every call mints a fresh triplet. For a supplied key, singleflight
// guarantees at-most-one-create; the losing caller observes the winner's
// record.
func (r *Registry) create(ctx context.Context, userID, threadID string) (*record, error) {
	if threadID == "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return r.newRecord(userID, ""), nil
	}

	key := sessionKey(userID, threadID)

	v, err, shared := r.group.Do(key, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Another goroutine may have won between our lookup and here.
		r.mu.RLock()
		rec, ok := r.records[key]
		valid := ok && time.Now().Before(rec.expiresAt)
		r.mu.RUnlock()
		if valid {
			return rec, nil
		}

		return r.newRecord(userID, threadID), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("registry collapsed concurrent creation key=%s", key)
	}

	return v.(*record), nil
}

// newRecord mints identifiers for a session and stores its record. With an
// empty threadID a correlated triplet is minted; a supplied thread id is
// adopted so the key stays resolvable, with the run embedding it for
// correlation.
func (r *Registry) newRecord(userID, threadID string) *record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var thread, run, request string
	if threadID == "" {
		thread, run, request = r.ids.MintTriplet(r.tag)
	} else {
		thread = threadID
		run = r.ids.MintChild(identifier.KindRun, r.tag, thread)
		request = r.ids.Mint(identifier.KindRequest, r.tag)
	}

	rec := &record{
		userID:        userID,
		threadID:      thread,
		runID:         run,
		lastRequestID: request,
		expiresAt:     time.Now().Add(r.ttl),
	}
	r.records[sessionKey(userID, thread)] = rec

	r.logger.Debug("registry created session user_id=%s thread_id=%s run_id=%s", userID, thread, run)
	r.recordAudit("session_created", userID, run)

	return rec
}

// buildContext mints a fresh request id against the record's run and wraps
// everything in a root execution context.
func (r *Registry) buildContext(userID string, rec *record) (*core.ExecutionContext, error) {
	requestID := r.ids.MintChild(identifier.KindRequest, r.tag, rec.runID)

	ec, err := core.NewRootContext(r.ids, userID, rec.threadID, rec.runID, requestID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	rec.lastRequestID = requestID
	r.mu.Unlock()

	return ec, nil
}

// Reset invalidates all session records for a user. Subsequent GetOrCreate
// calls behave as if the keys were never seen.
func (r *Registry) Reset(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, rec := range r.records {
		if rec.userID == userID {
			delete(r.records, key)
		}
	}
}

// ExpireSweep removes records whose expiry is at or before now. Contexts
// already issued from a swept record remain valid.
func (r *Registry) ExpireSweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, rec := range r.records {
		if !now.Before(rec.expiresAt) {
			delete(r.records, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live session records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *Registry) recordAudit(recordType, userID, resourceID string) {
	if r.audit == nil {
		return
	}
	rec := core.AuditRecord{
		RecordType: recordType,
		UserID:     userID,
		ResourceID: resourceID,
		Timestamp:  time.Now().UTC(),
	}
	if err := r.audit.Record(rec); err != nil {
		r.logger.Warn("registry audit record failed type=%s user_id=%s: %v", recordType, userID, err)
	}
}

func sessionKey(userID, threadID string) string {
	return userID + "\x1f" + threadID
}
