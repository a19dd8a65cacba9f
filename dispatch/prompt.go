package dispatch

import (
	"context"

	"github.com/greg-py/mcp-forge/protocol"
)

// TextContent represents text content in a prompt message.
type TextContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// ImageContent represents image content in a prompt message.
type ImageContent struct {
	Type     string `json:"type"` // always "image"
	Data     string `json:"data"` // base64 encoded
	MimeType string `json:"mimeType"`
}

// PromptMessage represents a message in a prompt result.
type PromptMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content any    `json:"content"`
}

// PromptResult is the result of getting a prompt.
type PromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptArgument describes an argument for a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptHandler is the function signature for prompt handlers.
type PromptHandler func(ctx context.Context, args map[string]string) (*PromptResult, error)

// Prompt is a parameterized template registered under a unique name.
type Prompt struct {
	name        string
	description string
	arguments   []PromptArgument
	handler     PromptHandler
}

// PromptInfo represents metadata about a registered prompt.
type PromptInfo struct {
	Name        string
	Description string
	Arguments   []PromptArgument
}

// PromptBuilder provides a fluent API for registering prompts.
type PromptBuilder struct {
	prompt     *Prompt
	dispatcher *Dispatcher
	err        error
}

// Prompt starts building a new prompt with the given name.
func (d *Dispatcher) Prompt(name string) *PromptBuilder {
	return &PromptBuilder{
		prompt:     &Prompt{name: name},
		dispatcher: d,
	}
}

// Description sets the prompt description.
func (b *PromptBuilder) Description(desc string) *PromptBuilder {
	if b.err != nil {
		return b
	}
	b.prompt.description = desc
	return b
}

// Argument adds an argument to the prompt.
func (b *PromptBuilder) Argument(name, description string, required bool) *PromptBuilder {
	if b.err != nil {
		return b
	}
	b.prompt.arguments = append(b.prompt.arguments, PromptArgument{
		Name:        name,
		Description: description,
		Required:    required,
	})
	return b
}

// Handler sets the prompt handler and registers the prompt.
func (b *PromptBuilder) Handler(fn PromptHandler) *PromptBuilder {
	if b.err != nil {
		return b
	}

	b.prompt.handler = fn
	b.err = b.dispatcher.registerPrompt(b.prompt)
	return b
}

// Err returns the first error encountered while building, including a
// duplicate-name rejection at registration.
func (b *PromptBuilder) Err() error {
	return b.err
}

// validate checks that all required arguments are present.
func (p *Prompt) validate(args map[string]string) error {
	for _, arg := range p.arguments {
		if arg.Required && args[arg.Name] == "" {
			return protocol.NewInvalidParams("missing required argument: " + arg.Name)
		}
	}
	return nil
}
