package core

import "maps"

// ResultKind discriminates the closed set of agent result shapes.
type ResultKind string

// Supported result kinds.
const (
	// ResultText carries plain text output in Text.
	ResultText ResultKind = "text"
	// ResultStructured carries key/value output in Data.
	ResultStructured ResultKind = "structured"
	// ResultError carries a failure description in Text.
	ResultError ResultKind = "error"
)

// AgentResultSchemaVersion is stamped on every result so downstream consumers
// can detect shape changes.
const AgentResultSchemaVersion = 1

// AgentResult is the closed tagged variant used wherever agent output crosses
// a package boundary. Exactly one of Text / Data is meaningful depending on
// Kind; the runtime records results without interpreting their content.
type AgentResult struct {
	SchemaVersion int            `json:"schema_version"`
	Kind          ResultKind     `json:"kind"`
	Text          string         `json:"text,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// TextResult builds a plain text result.
func TextResult(text string) AgentResult {
	return AgentResult{SchemaVersion: AgentResultSchemaVersion, Kind: ResultText, Text: text}
}

// StructuredResult builds a key/value result. The map is copied so the caller
// retains exclusive ownership of its argument.
func StructuredResult(data map[string]any) AgentResult {
	cp := make(map[string]any, len(data))
	maps.Copy(cp, data)
	return AgentResult{SchemaVersion: AgentResultSchemaVersion, Kind: ResultStructured, Data: cp}
}

// ErrorResult builds a failure result from err.
func ErrorResult(err error) AgentResult {
	return AgentResult{SchemaVersion: AgentResultSchemaVersion, Kind: ResultError, Text: err.Error()}
}

// Clone returns a copy whose Data map is independent of the receiver's.
func (r AgentResult) Clone() AgentResult {
	cp := r
	if r.Data != nil {
		cp.Data = make(map[string]any, len(r.Data))
		maps.Copy(cp.Data, r.Data)
	}
	return cp
}
