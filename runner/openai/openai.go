// Package openai provides an AgentRunner backed by the OpenAI Chat
// Completions API. It reads the staged prompt from the execution context and
// returns the completion as a text result.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/runner"
)

// Options configure the OpenAI runner. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// SystemPrompt is used when the context does not stage one of its own.
	SystemPrompt string
}

// Runner wraps the OpenAI Chat Completions API behind core.AgentRunner.
type Runner struct {
	client *openai.Client
	opts   Options
}

// NewRunner creates a new OpenAI runner using the official client.
func NewRunner(optFns ...func(o *Options)) *Runner {
	client := openai.NewClient()
	return NewRunnerFromClient(&client, optFns...)
}

// NewRunnerFromClient creates a new OpenAI runner from an existing client.
func NewRunnerFromClient(client *openai.Client, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runner{client: client, opts: opts}
}

// Run sends the context's staged input to the Chat Completions API and
// returns the reply as a text result.
func (r *Runner) Run(ctx context.Context, ec *core.ExecutionContext, agentName string) (core.AgentResult, error) {
	system, input := runner.PromptFromContext(ec)
	if input == "" {
		return core.AgentResult{}, fmt.Errorf("openai runner: no input staged for agent %s", agentName)
	}
	if system == "" {
		system = r.opts.SystemPrompt
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(input))

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               r.opts.Model,
		Temperature:         openai.Float(r.opts.Temperature),
		MaxCompletionTokens: openai.Int(r.opts.MaxCompletionTokens),
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return core.AgentResult{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return core.AgentResult{}, fmt.Errorf("openai api returned no choices")
	}

	return core.TextResult(resp.Choices[0].Message.Content), nil
}
