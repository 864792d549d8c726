// Package runner provides AgentRunner implementations backed by hosted LLM
// APIs. Runners read the staged prompt from the execution context's operation
// data, call the provider and return the reply as a plain text result. They
// never touch another context's state; everything they need travels inside
// the context they are handed.
package runner

import "github.com/hupe1980/agentcore/core"

const (
	// InputKey is the operation-data key runners read the user prompt from.
	InputKey = "input"
	// SystemPromptKey optionally overrides the runner's configured system
	// prompt for one operation.
	SystemPromptKey = "system_prompt"
)

// PromptFromContext extracts the staged system and user prompts from ec's
// operation data. Missing or non-string values yield empty strings.
func PromptFromContext(ec *core.ExecutionContext) (system, input string) {
	if v, ok := ec.OperationData(SystemPromptKey); ok {
		system, _ = v.(string)
	}
	if v, ok := ec.OperationData(InputKey); ok {
		input, _ = v.(string)
	}
	return system, input
}
