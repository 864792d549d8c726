// Package core provides the foundational domain types and collaborator
// contracts of the execution runtime. It defines:
//
//   - ExecutionContext (the immutable-identity, per-operation execution scope)
//   - IsolationGuard (test-visible verification that no mutable state leaks
//     between contexts belonging to different users)
//   - AgentResult (closed tagged variant for arbitrary agent output)
//   - EventSink / AgentRunner / AuditRecorder (abstract collaborators; wire
//     transport, agent business logic and durable audit storage live outside
//     this module)
//
// The package intentionally keeps implementation concerns (session registry,
// engine orchestration, concrete sinks) out of scope, exposing small
// interfaces so the surrounding service can supply its own backends.
package core
