// Package engine implements the per-user execution engine and its factory.
//
// One Engine is created per execution context. It tracks agent state and
// results scoped to that instance only, emits lifecycle events through the
// injected sink (always tagged with the owning user id) and moves through
// the state machine created → active → cleaning up → inactive exactly once.
//
// The Factory owns the active-engine table: it enforces the concurrent-engine
// bound, aggregates lifecycle metrics (active == created - cleaned after
// every operation), and offers scoped acquisition that guarantees cleanup on
// every exit path, including errors propagating out of the work function.
package engine
