package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/identifier"
)

type captureAudit struct {
	mu      sync.Mutex
	records []core.AuditRecord
}

func (c *captureAudit) Record(rec core.AuditRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func newRegistryForTest(optFns ...func(o *Options)) *Registry {
	return New(identifier.NewGenerator(), optFns...)
}

func TestSessionContinuity(t *testing.T) {
	r := newRegistryForTest()
	ctx := context.Background()

	first, err := r.GetOrCreate(ctx, "u1", "")
	require.NoError(t, err)

	second, err := r.GetOrCreate(ctx, "u1", first.ThreadID)
	require.NoError(t, err)

	assert.Equal(t, first.ThreadID, second.ThreadID)
	assert.Equal(t, first.RunID, second.RunID, "same key must reuse the run identity")
	assert.NotEqual(t, first.RequestID, second.RequestID, "every call mints a fresh request id")
}

func TestIssuedIdentifiersSatisfyGrammar(t *testing.T) {
	r := newRegistryForTest()
	ctx := context.Background()

	ec, err := r.GetOrCreate(ctx, "u1", "")
	require.NoError(t, err)

	for _, id := range []string{ec.ThreadID, ec.RunID, ec.RequestID} {
		_, err := identifier.Parse(id)
		require.NoError(t, err, "issued id %q must satisfy the grammar", id)
	}
	assert.True(t, identifier.Correlate(ec.ThreadID, ec.RunID))
	assert.True(t, identifier.Correlate(ec.RunID, ec.RequestID))

	// Continuity lookups mint against the stored (embedding) run id and must
	// keep producing valid, correlated request ids.
	again, err := r.GetOrCreate(ctx, "u1", ec.ThreadID)
	require.NoError(t, err)
	_, err = identifier.Parse(again.RequestID)
	require.NoError(t, err)
	assert.True(t, identifier.Correlate(again.RunID, again.RequestID))
}

func TestThreadIsolation(t *testing.T) {
	r := newRegistryForTest()
	ctx := context.Background()

	a, err := r.GetOrCreate(ctx, "u1", "")
	require.NoError(t, err)
	b, err := r.GetOrCreate(ctx, "u1", "")
	require.NoError(t, err)

	assert.NotEqual(t, a.ThreadID, b.ThreadID)
	assert.NotEqual(t, a.RunID, b.RunID, "distinct threads must get distinct runs")
}

func TestAdoptSuppliedThread(t *testing.T) {
	gen := identifier.NewGenerator()
	r := New(gen)
	ctx := context.Background()

	// A thread id minted elsewhere in the process (e.g. a resumed client).
	thread := gen.Mint(identifier.KindThread, "chat")

	ec, err := r.GetOrCreate(ctx, "u1", thread)
	require.NoError(t, err)
	assert.Equal(t, thread, ec.ThreadID)
	assert.True(t, identifier.Correlate(thread, ec.RunID), "run must correlate with the adopted thread")

	again, err := r.GetOrCreate(ctx, "u1", thread)
	require.NoError(t, err)
	assert.Equal(t, ec.RunID, again.RunID)
}

func TestInvalidOperationTagFallsBack(t *testing.T) {
	r := newRegistryForTest(func(o *Options) { o.OperationTag = "Chat" })

	// Construction must not arm a panic in the minting path; the registry
	// falls back to the default tag instead.
	ec, err := r.GetOrCreate(context.Background(), "u1", "")
	require.NoError(t, err)

	c, err := identifier.Parse(ec.RunID)
	require.NoError(t, err)
	assert.Equal(t, "chat", c.Tag)
}

func TestForeignThreadRejected(t *testing.T) {
	r := newRegistryForTest()

	_, err := r.GetOrCreate(context.Background(), "u1", "ca761232-ed42-11ce-bacd-00aa0057b223")
	assert.ErrorIs(t, err, identifier.ErrMalformedIdentifier)
	assert.Zero(t, r.Len(), "rejected input must not leave a record behind")
}

func TestReservedUserRejected(t *testing.T) {
	r := newRegistryForTest()

	for _, user := range []string{"", "anonymous", "unknown", "system"} {
		_, err := r.GetOrCreate(context.Background(), user, "")
		assert.ErrorIs(t, err, core.ErrInvalidContext, "user %q", user)
	}
	assert.Zero(t, r.Len())
}

func TestReset(t *testing.T) {
	r := newRegistryForTest()
	ctx := context.Background()

	first, err := r.GetOrCreate(ctx, "u1", "")
	require.NoError(t, err)
	_, err = r.GetOrCreate(ctx, "u2", "")
	require.NoError(t, err)

	r.Reset("u1")
	assert.Equal(t, 1, r.Len(), "only u1's records are invalidated")

	// Same key now behaves as absent: a new run is created for the thread.
	second, err := r.GetOrCreate(ctx, "u1", first.ThreadID)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestExpireSweep(t *testing.T) {
	r := newRegistryForTest(func(o *Options) { o.SessionTTL = 10 * time.Millisecond })
	ctx := context.Background()

	first, err := r.GetOrCreate(ctx, "u1", "")
	require.NoError(t, err)

	removed := r.ExpireSweep(time.Now().Add(time.Second))
	assert.Equal(t, 1, removed)
	assert.Zero(t, r.Len())

	// Expiry affects future lookups only; the issued context stays usable.
	assert.NotEmpty(t, first.CorrelationID())

	second, err := r.GetOrCreate(ctx, "u1", first.ThreadID)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID, "expired key must behave as absent")
}

func TestConcurrentCreationDistinctUsers(t *testing.T) {
	r := newRegistryForTest()
	ctx := context.Background()

	const users = 100

	var wg sync.WaitGroup
	results := make([]*core.ExecutionContext, users)

	start := time.Now()
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ec, err := r.GetOrCreate(ctx, userID(i), "")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			results[i] = ec
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	runs := map[string]bool{}
	requests := map[string]bool{}
	for _, ec := range results {
		require.NotNil(t, ec)
		runs[ec.RunID] = true
		requests[ec.RequestID] = true
	}
	assert.Len(t, runs, users)
	assert.Len(t, requests, users)
	assert.Equal(t, users, r.Len())
	assert.Less(t, elapsed, 5*time.Second, "creation across users must not serialize")
}

func TestConcurrentCreationSameKeyCollapses(t *testing.T) {
	gen := identifier.NewGenerator()
	r := New(gen)
	ctx := context.Background()
	thread := gen.Mint(identifier.KindThread, "chat")

	const callers = 32

	var wg sync.WaitGroup
	results := make([]*core.ExecutionContext, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ec, err := r.GetOrCreate(ctx, "u1", thread)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			results[i] = ec
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len(), "exactly one creation may win")

	requests := map[string]bool{}
	for _, ec := range results {
		require.NotNil(t, ec)
		assert.Equal(t, results[0].RunID, ec.RunID, "all callers observe the winner's run")
		requests[ec.RequestID] = true
	}
	assert.Len(t, requests, callers, "request ids stay distinct per call")
}

func TestConcurrentNewConversationsStayDistinct(t *testing.T) {
	r := newRegistryForTest()
	ctx := context.Background()

	const callers = 16

	var wg sync.WaitGroup
	results := make([]*core.ExecutionContext, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ec, err := r.GetOrCreate(ctx, "u1", "")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			results[i] = ec
		}(i)
	}
	wg.Wait()

	threads := map[string]bool{}
	for _, ec := range results {
		require.NotNil(t, ec)
		threads[ec.ThreadID] = true
	}
	assert.Len(t, threads, callers, "every new conversation gets its own thread")
	assert.Equal(t, callers, r.Len())
}

func TestCancelledCreationLeavesNoRecord(t *testing.T) {
	r := newRegistryForTest()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.GetOrCreate(ctx, "u1", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.Len())
}

func TestAuditRecordOnCreation(t *testing.T) {
	audit := &captureAudit{}
	r := newRegistryForTest(func(o *Options) { o.Audit = audit })
	ctx := context.Background()

	ec, err := r.GetOrCreate(ctx, "u1", "")
	require.NoError(t, err)

	// Continuity lookups do not re-record.
	_, err = r.GetOrCreate(ctx, "u1", ec.ThreadID)
	require.NoError(t, err)

	audit.mu.Lock()
	defer audit.mu.Unlock()
	require.Len(t, audit.records, 1)
	assert.Equal(t, "session_created", audit.records[0].RecordType)
	assert.Equal(t, "u1", audit.records[0].UserID)
	assert.Equal(t, ec.RunID, audit.records[0].ResourceID)
}

func userID(i int) string {
	return fmt.Sprintf("user-%03d", i)
}
