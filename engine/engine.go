package engine

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
)

// engineState is the lifecycle position of an Engine.
type engineState int32

const (
	stateCreated engineState = iota
	stateActive
	stateCleaning
	stateInactive
)

func (s engineState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateActive:
		return "active"
	case stateCleaning:
		return "cleaning_up"
	case stateInactive:
		return "inactive"
	default:
		return "invalid"
	}
}

// Engine executes agents for exactly one context. Agent state and results
// are exclusively owned by the instance; nothing stored here is ever visible
// to another engine, even under concurrent writes from many engines in the
// same process. All methods are safe for concurrent use.
type Engine struct {
	id        string
	ec        *core.ExecutionContext
	createdAt time.Time
	logger    logging.Logger

	mu           sync.RWMutex
	state        engineState
	sink         core.EventSink
	runner       core.AgentRunner
	agentState   map[string]any
	agentResults map[string]core.AgentResult
}

func newEngine(id string, ec *core.ExecutionContext, sink core.EventSink, runner core.AgentRunner, logger logging.Logger) *Engine {
	return &Engine{
		id:           id,
		ec:           ec,
		createdAt:    time.Now().UTC(),
		logger:       logger,
		state:        stateCreated,
		sink:         sink,
		runner:       runner,
		agentState:   map[string]any{},
		agentResults: map[string]core.AgentResult{},
	}
}

func (e *Engine) activate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateCreated {
		e.state = stateActive
	}
}

// ID returns the engine's unique identifier.
func (e *Engine) ID() string { return e.id }

// Context returns the execution context this engine is bound to.
func (e *Engine) Context() *core.ExecutionContext { return e.ec }

// IsActive reports whether the engine may still execute and emit. It flips to
// false exactly once, at cleanup.
func (e *Engine) IsActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == stateActive
}

// SetAgentState stores per-agent working state scoped to this engine.
func (e *Engine) SetAgentState(name string, state any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.agentState == nil {
		return
	}
	e.agentState[name] = state
}

// AgentState returns the working state for an agent, if any.
func (e *Engine) AgentState(name string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.agentState[name]
	return v, ok
}

// SetAgentResult records an agent's result. Results are cloned in so the
// caller cannot alias the engine's internal map values.
func (e *Engine) SetAgentResult(name string, result core.AgentResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.agentResults == nil {
		return
	}
	e.agentResults[name] = result.Clone()
}

// AgentResult returns the recorded result for an agent, if any.
func (e *Engine) AgentResult(name string) (core.AgentResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.agentResults[name]
	if !ok {
		return core.AgentResult{}, false
	}
	return r.Clone(), true
}

// AllResults returns a copy of every recorded result keyed by agent name.
func (e *Engine) AllResults() map[string]core.AgentResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]core.AgentResult, len(e.agentResults))
	for name, r := range e.agentResults {
		out[name] = r.Clone()
	}
	return out
}

// NotifyStarted emits a started event for an agent.
func (e *Engine) NotifyStarted(agentName string) error {
	return e.emit(core.EventStarted, core.EventPayload{AgentName: agentName})
}

// NotifyThinking emits a thinking event carrying the agent's reasoning.
func (e *Engine) NotifyThinking(agentName, reasoning string) error {
	return e.emit(core.EventThinking, core.EventPayload{AgentName: agentName, Reasoning: reasoning})
}

// NotifyToolExecuting emits a tool-executing event.
func (e *Engine) NotifyToolExecuting(agentName, tool string, params map[string]any) error {
	cp := make(map[string]any, len(params))
	maps.Copy(cp, params)
	return e.emit(core.EventToolExecuting, core.EventPayload{AgentName: agentName, Tool: tool, Params: cp})
}

// NotifyToolCompleted emits a tool-completed event with the tool's result.
func (e *Engine) NotifyToolCompleted(agentName, tool string, result core.AgentResult) error {
	r := result.Clone()
	return e.emit(core.EventToolCompleted, core.EventPayload{AgentName: agentName, Tool: tool, Result: &r})
}

// NotifyCompleted emits a completed event with the agent's final result.
func (e *Engine) NotifyCompleted(agentName string, result core.AgentResult) error {
	r := result.Clone()
	return e.emit(core.EventCompleted, core.EventPayload{AgentName: agentName, Result: &r})
}

// emit forwards an event to the sink, tagged with the owning user id. A
// non-active engine refuses with a logged warning instead of crashing or
// emitting on behalf of a dead context.
func (e *Engine) emit(eventType core.EventType, payload core.EventPayload) error {
	e.mu.RLock()
	sink := e.sink
	active := e.state == stateActive
	e.mu.RUnlock()

	if !active || sink == nil {
		e.logger.Warn("engine dropped event engine_id=%s type=%s: engine not active", e.id, eventType)
		return nil
	}

	payload.EngineID = e.id
	payload.RunID = e.ec.RunID

	return sink.Emit(e.ec.UserID, eventType, payload)
}

// Execute sequences one agent invocation: emits started, calls the injected
// runner with cancellation, records the result and emits completed. The
// runner's output is recorded verbatim, never interpreted. Emission failures
// are logged but do not fail the run: recording always wins over delivery.
func (e *Engine) Execute(ctx context.Context, agentName string) (core.AgentResult, error) {
	if !e.IsActive() {
		return core.AgentResult{}, fmt.Errorf("engine %s is not active", e.id)
	}

	e.mu.RLock()
	runner := e.runner
	e.mu.RUnlock()

	if runner == nil {
		return core.AgentResult{}, fmt.Errorf("engine %s has no agent runner", e.id)
	}

	if err := e.NotifyStarted(agentName); err != nil {
		e.logger.Warn("engine emit started failed engine_id=%s agent=%s: %v", e.id, agentName, err)
	}

	result, err := runner.Run(ctx, e.ec, agentName)
	if err != nil {
		failure := core.ErrorResult(err)
		e.SetAgentResult(agentName, failure)
		if emitErr := e.emit(core.EventCompleted, core.EventPayload{AgentName: agentName, Result: &failure, Error: err.Error()}); emitErr != nil {
			e.logger.Warn("engine emit completed failed engine_id=%s agent=%s: %v", e.id, agentName, emitErr)
		}
		return core.AgentResult{}, fmt.Errorf("agent %s execution failed: %w", agentName, err)
	}

	e.SetAgentResult(agentName, result)
	if emitErr := e.NotifyCompleted(agentName, result); emitErr != nil {
		e.logger.Warn("engine emit completed failed engine_id=%s agent=%s: %v", e.id, agentName, emitErr)
	}

	return result, nil
}

// Stats returns a snapshot of the engine's identity and progress.
func (e *Engine) Stats() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return map[string]any{
		"user_id":     e.ec.UserID,
		"engine_id":   e.id,
		"created_at":  e.createdAt,
		"is_active":   e.state == stateActive,
		"state":       e.state.String(),
		"agent_count": len(e.agentState),
	}
}

// Cleanup transitions the engine to inactive, releasing agent state and
// results and detaching the sink. It is idempotent: the second call is a
// no-op. Failures while notifying are logged and never prevent the engine
// from reaching inactive: reclamation wins over delivery.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	if e.state == stateCleaning || e.state == stateInactive {
		e.mu.Unlock()
		return
	}
	e.state = stateCleaning
	e.agentState = nil
	e.agentResults = nil
	e.sink = nil
	e.runner = nil
	e.state = stateInactive
	e.mu.Unlock()

	e.logger.Debug("engine cleaned up engine_id=%s user_id=%s", e.id, e.ec.UserID)
}
