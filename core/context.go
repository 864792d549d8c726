package core

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/hupe1980/agentcore/identifier"
)

// reservedUserIDs are placeholder tokens that must never reach the runtime as
// a real user identity. They show up when an upstream layer forgets to
// resolve authentication before requesting a context.
var reservedUserIDs = map[string]bool{
	"anonymous": true,
	"unknown":   true,
	"system":    true,
}

// ExecutionContext is the isolated execution scope for one inbound operation.
// Identity fields (UserID, ThreadID, RunID, RequestID) are set exactly once
// at construction and never reassigned. The two mutable maps (operation data,
// audit metadata) are exclusively owned by this instance: deriving a child
// deep-copies them, and no two contexts may ever alias the same map, even for
// the same user.
type ExecutionContext struct {
	UserID          string
	ThreadID        string
	RunID           string
	RequestID       string
	OperationDepth  int
	ParentRequestID string
	CreatedAt       time.Time

	ids *identifier.Generator

	mu            sync.RWMutex
	operationData map[string]any
	auditMetadata map[string]any
	resource      any
}

// ValidateUserID rejects empty or reserved placeholder user ids. Callers that
// create shared state keyed by user (registry records, engines) validate
// before allocating anything so a failed call leaves nothing behind.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidContext)
	}
	if reservedUserIDs[userID] {
		return fmt.Errorf("%w: reserved user id %q", ErrInvalidContext, userID)
	}
	return nil
}

// NewRootContext builds a depth-zero context after validating its identity.
// The user id is an external identity: it must be non-empty and not a
// reserved placeholder but is otherwise opaque. The three runtime-minted
// identifiers (thread, run, request) must parse under the structured grammar.
// Any violation fails with an ErrInvalidContext wrap.
func NewRootContext(gen *identifier.Generator, userID, threadID, runID, requestID string) (*ExecutionContext, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, fmt.Errorf("%w: nil identifier generator", ErrInvalidContext)
	}

	for _, id := range []struct{ name, value string }{
		{"thread id", threadID},
		{"run id", runID},
		{"request id", requestID},
	} {
		if _, err := identifier.Parse(id.value); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidContext, id.name, err)
		}
	}

	return &ExecutionContext{
		UserID:        userID,
		ThreadID:      threadID,
		RunID:         runID,
		RequestID:     requestID,
		CreatedAt:     time.Now().UTC(),
		ids:           gen,
		operationData: map[string]any{},
		auditMetadata: map[string]any{},
	}, nil
}

// DeriveChild produces a context for a sub-operation. It shares the identity
// of the conversation (user, thread, run) but carries a freshly minted
// request id embedding the parent's, depth+1, and deep copies of both mutable
// maps merged with extra. The child never aliases the parent's maps.
func (ec *ExecutionContext) DeriveChild(operationTag string, extra map[string]any) *ExecutionContext {
	child := &ExecutionContext{
		UserID:          ec.UserID,
		ThreadID:        ec.ThreadID,
		RunID:           ec.RunID,
		RequestID:       ec.ids.MintChild(identifier.KindRequest, operationTag, ec.RequestID),
		OperationDepth:  ec.OperationDepth + 1,
		ParentRequestID: ec.RequestID,
		CreatedAt:       time.Now().UTC(),
		ids:             ec.ids,
		operationData:   map[string]any{},
		auditMetadata:   map[string]any{},
	}

	ec.mu.RLock()
	maps.Copy(child.operationData, ec.operationData)
	maps.Copy(child.auditMetadata, ec.auditMetadata)
	ec.mu.RUnlock()

	maps.Copy(child.operationData, extra)

	return child
}

// SetOperationData stages a key/value pair in the operation-scoped data map.
func (ec *ExecutionContext) SetOperationData(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.operationData[key] = value
}

// OperationData returns the value and existence flag for an operation data key.
func (ec *ExecutionContext) OperationData(key string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.operationData[key]
	return v, ok
}

// OperationDataSnapshot returns a copy of the operation data map.
func (ec *ExecutionContext) OperationDataSnapshot() map[string]any {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	cp := make(map[string]any, len(ec.operationData))
	maps.Copy(cp, ec.operationData)
	return cp
}

// SetAuditMetadata stages a key/value pair in the audit metadata map.
func (ec *ExecutionContext) SetAuditMetadata(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.auditMetadata[key] = value
}

// AuditMetadata returns the value and existence flag for an audit metadata key.
func (ec *ExecutionContext) AuditMetadata(key string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.auditMetadata[key]
	return v, ok
}

// AttachResource binds an external handle (e.g. a storage connection) to the
// context. The runtime never touches the handle; it only reports attachment
// in the audit trail.
func (ec *ExecutionContext) AttachResource(r any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.resource = r
}

// Resource returns the attached external handle, if any.
func (ec *ExecutionContext) Resource() any {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.resource
}

// CorrelationID returns the human-debuggable trace key
// "user:thread:run:request".
func (ec *ExecutionContext) CorrelationID() string {
	return fmt.Sprintf("%s:%s:%s:%s", ec.UserID, ec.ThreadID, ec.RunID, ec.RequestID)
}

// AuditTrail returns a read-only snapshot of the context identity, its age
// and whether an external resource is attached.
func (ec *ExecutionContext) AuditTrail() map[string]any {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	trail := map[string]any{
		"user_id":           ec.UserID,
		"thread_id":         ec.ThreadID,
		"run_id":            ec.RunID,
		"request_id":        ec.RequestID,
		"operation_depth":   ec.OperationDepth,
		"age":               time.Since(ec.CreatedAt),
		"resource_attached": ec.resource != nil,
	}
	if ec.ParentRequestID != "" {
		trail["parent_request_id"] = ec.ParentRequestID
	}
	for k, v := range ec.auditMetadata {
		trail["meta_"+k] = v
	}
	return trail
}
