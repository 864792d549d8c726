// Package agentcore provides a high-level façade over the execution-context
// and engine abstractions (identifiers, session registry, engine factory,
// isolation guard) enabling rapid construction of multi-tenant agent
// backends. Most applications interact with this package by:
//  1. Creating a Runtime via New() (optionally overriding default in-memory collaborators)
//  2. Resolving execution contexts per inbound call (GetOrCreateContext)
//  3. Running agent work inside a scoped engine (WithEngine)
//
// The façade delegates session continuity to registry.Registry and engine
// lifecycle to engine.Factory while keeping setup and usage ergonomics
// concise. All defaults are safe for local development and testing;
// production deployments typically supply a real AgentRunner, a durable
// audit recorder and a structured logger.
package agentcore

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/hupe1980/agentcore/audit"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/engine"
	"github.com/hupe1980/agentcore/identifier"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/registry"
	"github.com/hupe1980/agentcore/sink"
)

// Options configures the Runtime instance.
type Options struct {
	// MaxEngines limits concurrently active engines. Zero falls back to
	// engine.DefaultMaxEngines.
	MaxEngines int

	// SessionTTL is the idle lifetime of a session record. Zero falls back
	// to registry.DefaultSessionTTL.
	SessionTTL time.Duration

	// OperationTag is stamped into every identifier minted by the runtime.
	OperationTag string

	// Collaborators (default to in-memory implementations if not provided).
	Sink  core.EventSink
	Audit core.AuditRecorder

	// Runner executes agents on behalf of engines. Optional; engines
	// without one refuse Execute.
	Runner core.AgentRunner

	// Meter, when set, publishes engine lifecycle counters as OTel
	// instruments.
	Meter metric.Meter

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Runtime is the high-level façade aggregating the identifier generator,
// session registry, engine factory and isolation guard.
type Runtime struct {
	opts     Options
	ids      *identifier.Generator
	guard    *core.IsolationGuard
	registry *registry.Registry
	factory  *engine.Factory
}

// New creates a Runtime with optional overrides. Any unset collaborator is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Runtime {
	opts := Options{
		MaxEngines:   engine.DefaultMaxEngines,
		SessionTTL:   registry.DefaultSessionTTL,
		OperationTag: "chat",
		Sink:         sink.NewInMemory(),
		Audit:        audit.NewInMemory(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if !identifier.ValidTag(opts.OperationTag) {
		opts.Logger.Warn("runtime falling back to default operation tag: %q does not satisfy the tag grammar", opts.OperationTag)
		opts.OperationTag = "chat"
	}

	ids := identifier.NewGenerator()
	guard := core.NewIsolationGuard()

	regLogger := componentLogger(opts.Logger, "registry")
	facLogger := componentLogger(opts.Logger, "engine")

	reg := registry.New(ids, func(o *registry.Options) {
		o.SessionTTL = opts.SessionTTL
		o.OperationTag = opts.OperationTag
		o.Audit = opts.Audit
		o.Logger = regLogger
	})

	factory := engine.NewFactory(func(o *engine.Options) {
		o.MaxEngines = opts.MaxEngines
		o.Sink = opts.Sink
		o.Runner = opts.Runner
		o.Guard = guard
		o.Audit = opts.Audit
		o.Meter = opts.Meter
		o.Logger = facLogger
	})

	return &Runtime{
		opts:     opts,
		ids:      ids,
		guard:    guard,
		registry: reg,
		factory:  factory,
	}
}

// componentLogger tags a logger with its owning component when the
// implementation supports contextual cloning.
func componentLogger(l logging.Logger, component string) logging.Logger {
	if rl, ok := l.(*logging.RuntimeLogger); ok {
		return rl.WithComponent(component)
	}
	return l
}

// GetOrCreateContext resolves the session for (userID, threadID) and returns
// a root execution context carrying its run identity plus a fresh request id.
// Pass an empty threadID to start a new conversation.
func (rt *Runtime) GetOrCreateContext(ctx context.Context, userID, threadID string) (*core.ExecutionContext, error) {
	ec, err := rt.registry.GetOrCreate(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}

	rt.guard.Register(ec)
	return ec, nil
}

// NewChildContext derives a sub-operation context from parent, tagging its
// request id with operationTag and seeding its operation data with extra.
// The child is tracked by the isolation guard until ReleaseContext is called.
func (rt *Runtime) NewChildContext(parent *core.ExecutionContext, operationTag string, extra map[string]any) (*core.ExecutionContext, error) {
	if parent == nil {
		return nil, core.ErrInvalidContext
	}
	if operationTag == "" {
		operationTag = rt.opts.OperationTag
	}
	if !identifier.ValidTag(operationTag) {
		return nil, fmt.Errorf("%w: operation tag %q does not satisfy the tag grammar", core.ErrInvalidContext, operationTag)
	}

	child := parent.DeriveChild(operationTag, extra)
	rt.guard.Register(child)
	return child, nil
}

// ReleaseContext removes a context from isolation tracking. Engine-bound
// contexts are released automatically during engine cleanup; call this for
// contexts that never acquired an engine.
func (rt *Runtime) ReleaseContext(ec *core.ExecutionContext) {
	rt.guard.Unregister(ec)
}

// WithEngine acquires an engine bound to ec for the duration of fn and
// guarantees cleanup on every exit path.
func (rt *Runtime) WithEngine(ctx context.Context, ec *core.ExecutionContext, fn func(e *engine.Engine) error) error {
	return rt.factory.WithEngine(ctx, ec, fn)
}

// CreateEngine constructs a long-lived engine bound to ec. The caller owns
// its lifecycle and must hand it back via CleanupEngine. Prefer WithEngine
// for request-scoped work.
func (rt *Runtime) CreateEngine(ec *core.ExecutionContext) (*engine.Engine, error) {
	return rt.factory.CreateForContext(ec)
}

// CleanupEngine tears down an engine created via CreateEngine. Idempotent.
func (rt *Runtime) CleanupEngine(e *engine.Engine) {
	rt.factory.CleanupEngine(e)
}

// VerifyIsolation checks that ec shares no mutable state with any other live
// context belonging to a different user.
func (rt *Runtime) VerifyIsolation(ec *core.ExecutionContext) error {
	return rt.guard.Verify(ec)
}

// FactoryMetrics returns the engine factory's lifecycle counters.
func (rt *Runtime) FactoryMetrics() engine.Metrics {
	return rt.factory.Metrics()
}

// ResetUser invalidates all session records for a user. Subsequent
// GetOrCreateContext calls mint fresh runs.
func (rt *Runtime) ResetUser(userID string) {
	rt.registry.Reset(userID)
}

// StartExpirySweeper launches a background goroutine that drops expired
// session records every interval until ctx is cancelled.
func (rt *Runtime) StartExpirySweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if removed := rt.registry.ExpireSweep(now); removed > 0 {
					rt.opts.Logger.Debug("expiry sweep removed sessions count=%d", removed)
				}
			}
		}
	}()
}

// Shutdown cleans up every active engine and refuses further engine creates.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	return rt.factory.Shutdown(ctx)
}
