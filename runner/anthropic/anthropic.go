// Package anthropic provides an AgentRunner backed by the Anthropic Messages
// API. It reads the staged prompt from the execution context and returns the
// reply as a text result.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/runner"
)

// Options configure the Anthropic runner (model id, temperature, max tokens,
// API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	// SystemPrompt is used when the context does not stage one of its own.
	SystemPrompt string
}

// Runner wraps the Anthropic Messages API behind core.AgentRunner.
type Runner struct {
	client *anthropic.Client
	opts   Options
}

// NewRunner creates a new Anthropic runner using the official client.
func NewRunner(optFns ...func(o *Options)) *Runner {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Runner{
		client: &client,
		opts:   opts,
	}
}

// NewRunnerFromClient creates a new Anthropic runner from an existing client.
func NewRunnerFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		client: client,
		opts:   opts,
	}
}

// Run sends the context's staged input to the Messages API and returns the
// reply as a text result. Multiple text blocks are concatenated.
func (r *Runner) Run(ctx context.Context, ec *core.ExecutionContext, agentName string) (core.AgentResult, error) {
	system, input := runner.PromptFromContext(ec)
	if input == "" {
		return core.AgentResult{}, fmt.Errorf("anthropic runner: no input staged for agent %s", agentName)
	}
	if system == "" {
		system = r.opts.SystemPrompt
	}

	params := anthropic.MessageNewParams{
		Model:       r.opts.Model,
		MaxTokens:   r.opts.MaxTokens,
		Temperature: anthropic.Float(r.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(input)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return core.AgentResult{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if text.Len() == 0 {
		return core.AgentResult{}, fmt.Errorf("anthropic api returned no text content")
	}

	return core.TextResult(text.String()), nil
}
