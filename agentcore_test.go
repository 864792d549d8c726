package agentcore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/engine"
	"github.com/hupe1980/agentcore/identifier"
	"github.com/hupe1980/agentcore/sink"
)

// echoRunner returns a canned text result for every agent.
type echoRunner struct{}

func (echoRunner) Run(_ context.Context, ec *core.ExecutionContext, agentName string) (core.AgentResult, error) {
	return core.TextResult(fmt.Sprintf("%s ran for %s", agentName, ec.UserID)), nil
}

func TestRuntimeSessionContinuity(t *testing.T) {
	rt := New()

	first, err := rt.GetOrCreateContext(context.Background(), "U1", "")
	require.NoError(t, err)

	// Same user, same thread: run survives, request is fresh.
	second, err := rt.GetOrCreateContext(context.Background(), "U1", first.ThreadID)
	require.NoError(t, err)

	assert.Equal(t, first.ThreadID, second.ThreadID)
	assert.Equal(t, first.RunID, second.RunID)
	assert.NotEqual(t, first.RequestID, second.RequestID)

	// A new conversation gets its own run.
	other, err := rt.GetOrCreateContext(context.Background(), "U1", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, other.RunID)

	// The triplet is correlated end to end.
	assert.True(t, identifier.Correlate(first.ThreadID, first.RunID))
	assert.True(t, identifier.Correlate(first.RunID, first.RequestID))
	assert.True(t, identifier.Correlate(second.RunID, second.RequestID))

	rt.ReleaseContext(first)
	rt.ReleaseContext(second)
	rt.ReleaseContext(other)
}

func TestRuntimeWithEngineExecute(t *testing.T) {
	events := sink.NewInMemory()

	rt := New(func(o *Options) {
		o.Sink = events
		o.Runner = echoRunner{}
	})

	ec, err := rt.GetOrCreateContext(context.Background(), "U1", "")
	require.NoError(t, err)

	err = rt.WithEngine(context.Background(), ec, func(e *engine.Engine) error {
		result, err := e.Execute(context.Background(), "researcher")
		if err != nil {
			return err
		}
		assert.Equal(t, core.ResultText, result.Kind)
		assert.Equal(t, "researcher ran for U1", result.Text)
		return nil
	})
	require.NoError(t, err)

	// Scoped acquisition cleaned the engine back up.
	m := rt.FactoryMetrics()
	assert.Equal(t, int64(0), m.Active)
	assert.Equal(t, int64(1), m.TotalCreated)
	assert.Equal(t, int64(1), m.TotalCleaned)

	got := events.Events("U1")
	require.Len(t, got, 2)
	assert.Equal(t, core.EventStarted, got[0].Type)
	assert.Equal(t, core.EventCompleted, got[1].Type)
	assert.Equal(t, ec.RunID, got[0].Payload.RunID)
}

func TestRuntimeChildContext(t *testing.T) {
	rt := New()

	parent, err := rt.GetOrCreateContext(context.Background(), "U1", "")
	require.NoError(t, err)

	child, err := rt.NewChildContext(parent, "tool", map[string]any{"tool": "search"})
	require.NoError(t, err)

	assert.Equal(t, parent.RunID, child.RunID)
	assert.Equal(t, parent.OperationDepth+1, child.OperationDepth)
	assert.Equal(t, parent.RequestID, child.ParentRequestID)
	assert.True(t, identifier.Correlate(parent.RequestID, child.RequestID))

	v, ok := child.OperationData("tool")
	require.True(t, ok)
	assert.Equal(t, "search", v)

	// Child owns its own maps.
	child.SetOperationData("scratch", 1)
	_, ok = parent.OperationData("scratch")
	assert.False(t, ok)

	_, err = rt.NewChildContext(nil, "tool", nil)
	assert.ErrorIs(t, err, core.ErrInvalidContext)

	// An invalid tag is rejected up front rather than blowing up in minting.
	_, err = rt.NewChildContext(parent, "Tool Call", nil)
	assert.ErrorIs(t, err, core.ErrInvalidContext)
}

func TestRuntimeIsolationAcrossUsers(t *testing.T) {
	rt := New(func(o *Options) {
		o.Runner = echoRunner{}
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			userID := fmt.Sprintf("user-%02d", n)
			ec, err := rt.GetOrCreateContext(context.Background(), userID, "")
			if err != nil {
				t.Errorf("GetOrCreateContext(%s): %v", userID, err)
				return
			}
			ec.SetOperationData("owner", userID)

			if err := rt.VerifyIsolation(ec); err != nil {
				t.Errorf("VerifyIsolation(%s): %v", userID, err)
			}

			err = rt.WithEngine(context.Background(), ec, func(e *engine.Engine) error {
				_, err := e.Execute(context.Background(), "worker")
				return err
			})
			if err != nil {
				t.Errorf("WithEngine(%s): %v", userID, err)
			}
		}(i)
	}
	wg.Wait()

	m := rt.FactoryMetrics()
	assert.Equal(t, int64(0), m.Active)
	assert.Equal(t, m.TotalCreated, m.TotalCleaned)
}

func TestRuntimeResetUser(t *testing.T) {
	rt := New()

	first, err := rt.GetOrCreateContext(context.Background(), "U1", "")
	require.NoError(t, err)

	rt.ResetUser("U1")

	second, err := rt.GetOrCreateContext(context.Background(), "U1", first.ThreadID)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRuntimeShutdown(t *testing.T) {
	rt := New()

	ec, err := rt.GetOrCreateContext(context.Background(), "U1", "")
	require.NoError(t, err)

	e, err := rt.CreateEngine(ec)
	require.NoError(t, err)
	assert.True(t, e.IsActive())

	require.NoError(t, rt.Shutdown(context.Background()))
	assert.False(t, e.IsActive())

	_, err = rt.CreateEngine(ec)
	assert.ErrorIs(t, err, engine.ErrFactoryClosed)
}

func TestRuntimeRejectsReservedUser(t *testing.T) {
	rt := New()

	for _, userID := range []string{"", "anonymous", "unknown", "system"} {
		_, err := rt.GetOrCreateContext(context.Background(), userID, "")
		assert.ErrorIs(t, err, core.ErrInvalidContext, "user %q", userID)
	}
}
