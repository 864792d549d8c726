package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
)

var (
	// ErrResourceExhausted is returned when the factory is at its configured
	// concurrent-engine bound. It is retryable: callers may back off and try
	// again once engines are cleaned up.
	ErrResourceExhausted = fmt.Errorf("engine capacity exhausted")

	// ErrFactoryClosed is returned for creates after Shutdown.
	ErrFactoryClosed = fmt.Errorf("engine factory closed")
)

// DefaultMaxEngines bounds concurrent engines when no override is given.
const DefaultMaxEngines = 100

// Metrics aggregates factory lifecycle counters. After every operation
// Active == TotalCreated - TotalCleaned.
type Metrics struct {
	Active       int64 `json:"active"`
	TotalCreated int64 `json:"total_created"`
	TotalCleaned int64 `json:"total_cleaned"`
}

// Options holds dependency and configuration overrides passed to NewFactory().
type Options struct {
	// MaxEngines limits concurrently active engines. Zero falls back to
	// DefaultMaxEngines.
	MaxEngines int
	// Sink receives lifecycle events from every engine. Required for
	// emission; engines with a nil sink drop events with a warning.
	Sink core.EventSink
	// Runner executes agents on behalf of engines. Optional; engines without
	// one refuse Execute.
	Runner core.AgentRunner
	// Guard, when set, tracks each engine's context for isolation
	// verification and releases it on cleanup.
	Guard *core.IsolationGuard
	// Audit receives a record per engine created and cleaned. Optional.
	Audit core.AuditRecorder
	// Meter, when set, publishes the lifecycle counters as OTel instruments.
	Meter metric.Meter
	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
}

// Factory creates engines bound to contexts and owns the active-engine
// table. Safe for concurrent use; the table lock covers only map bookkeeping
// so unrelated engines never serialize their actual work.
type Factory struct {
	maxEngines int
	sink       core.EventSink
	runner     core.AgentRunner
	guard      *core.IsolationGuard
	audit      core.AuditRecorder
	logger     logging.Logger

	mu           sync.Mutex
	engines      map[string]*Engine
	closed       bool
	totalCreated int64
	totalCleaned int64

	metricCreated metric.Int64Counter
	metricCleaned metric.Int64Counter
	metricActive  metric.Int64UpDownCounter
}

// NewFactory constructs a Factory with optional overrides.
func NewFactory(optFns ...func(o *Options)) *Factory {
	opts := Options{
		MaxEngines: DefaultMaxEngines,
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxEngines <= 0 {
		opts.MaxEngines = DefaultMaxEngines
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	f := &Factory{
		maxEngines: opts.MaxEngines,
		sink:       opts.Sink,
		runner:     opts.Runner,
		guard:      opts.Guard,
		audit:      opts.Audit,
		logger:     opts.Logger,
		engines:    make(map[string]*Engine),
	}

	if opts.Meter != nil {
		f.initInstruments(opts.Meter)
	}

	return f
}

func (f *Factory) initInstruments(meter metric.Meter) {
	var err error
	if f.metricCreated, err = meter.Int64Counter("agentcore.engines.created"); err != nil {
		f.logger.Warn("factory metric instrument unavailable: %v", err)
	}
	if f.metricCleaned, err = meter.Int64Counter("agentcore.engines.cleaned"); err != nil {
		f.logger.Warn("factory metric instrument unavailable: %v", err)
	}
	if f.metricActive, err = meter.Int64UpDownCounter("agentcore.engines.active"); err != nil {
		f.logger.Warn("factory metric instrument unavailable: %v", err)
	}
}

// CreateForContext constructs an engine bound to ec, registers it in the
// active-engine table and activates it. Fails with ErrResourceExhausted at
// capacity and ErrFactoryClosed after Shutdown; a failed create leaves no
// trace in the table or the metrics.
func (f *Factory) CreateForContext(ec *core.ExecutionContext) (*Engine, error) {
	if ec == nil {
		return nil, fmt.Errorf("%w: nil context", core.ErrInvalidContext)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFactoryClosed
	}
	if len(f.engines) >= f.maxEngines {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: %d engines active", ErrResourceExhausted, f.maxEngines)
	}

	e := newEngine(uuid.NewString(), ec, f.sink, f.runner, f.engineLogger(ec))
	f.engines[e.id] = e
	f.totalCreated++
	f.mu.Unlock()

	if f.guard != nil {
		f.guard.Register(ec)
	}
	e.activate()

	if f.metricCreated != nil {
		f.metricCreated.Add(context.Background(), 1)
	}
	if f.metricActive != nil {
		f.metricActive.Add(context.Background(), 1)
	}
	f.recordAudit("engine_created", ec.UserID, e.id)
	f.logger.Debug("factory created engine engine_id=%s user_id=%s run_id=%s", e.id, ec.UserID, ec.RunID)

	return e, nil
}

// engineLogger scopes the factory's logger to the engine's owning identity
// when the underlying implementation supports contextual cloning.
func (f *Factory) engineLogger(ec *core.ExecutionContext) logging.Logger {
	if rl, ok := f.logger.(*logging.RuntimeLogger); ok {
		return rl.WithUser(ec.UserID).WithRun(ec.RunID, ec.RequestID)
	}
	return f.logger
}

// CleanupEngine cleans e and removes it from the active-engine table. It is
// safe to call from error paths with an engine that never became fully
// active, and calling it twice only counts once.
func (f *Factory) CleanupEngine(e *Engine) {
	if e == nil {
		return
	}

	e.Cleanup()

	f.mu.Lock()
	_, tracked := f.engines[e.id]
	if tracked {
		delete(f.engines, e.id)
		f.totalCleaned++
	}
	f.mu.Unlock()

	if !tracked {
		return
	}

	if f.guard != nil {
		f.guard.Unregister(e.ec)
	}

	if f.metricCleaned != nil {
		f.metricCleaned.Add(context.Background(), 1)
	}
	if f.metricActive != nil {
		f.metricActive.Add(context.Background(), -1)
	}
	f.recordAudit("engine_cleaned", e.ec.UserID, e.id)
}

// WithEngine acquires an engine for the duration of fn and guarantees cleanup
// on every exit path: normal return, early return or an error propagating out
// of fn. The context only gates acquisition and is handed to fn's closure via
// ordinary capture.
func (f *Factory) WithEngine(ctx context.Context, ec *core.ExecutionContext, fn func(e *Engine) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e, err := f.CreateForContext(ec)
	if err != nil {
		return err
	}
	defer f.CleanupEngine(e)

	return fn(e)
}

// Metrics returns the factory's lifecycle counters.
func (f *Factory) Metrics() Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Metrics{
		Active:       int64(len(f.engines)),
		TotalCreated: f.totalCreated,
		TotalCleaned: f.totalCleaned,
	}
}

// ActiveEngines returns the ids of all engines currently registered.
func (f *Factory) ActiveEngines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.engines))
	for id := range f.engines {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown cleans up every still-active engine and refuses further creates.
// It returns early with the context's error if cancelled mid-sweep; already
// cleaned engines stay cleaned.
func (f *Factory) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	remaining := make([]*Engine, 0, len(f.engines))
	for _, e := range f.engines {
		remaining = append(remaining, e)
	}
	f.mu.Unlock()

	for _, e := range remaining {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.CleanupEngine(e)
	}

	f.logger.Info("factory shut down engines_cleaned=%d", len(remaining))
	return nil
}

func (f *Factory) recordAudit(recordType, userID, resourceID string) {
	if f.audit == nil {
		return
	}
	rec := core.AuditRecord{
		RecordType: recordType,
		UserID:     userID,
		ResourceID: resourceID,
		Timestamp:  time.Now().UTC(),
	}
	if err := f.audit.Record(rec); err != nil {
		f.logger.Warn("factory audit record failed type=%s engine_id=%s: %v", recordType, resourceID, err)
	}
}
