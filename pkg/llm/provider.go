package llm

import (
	"context"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	// Temperature is nil when the caller did not ask for one, so providers can
	// tell "use your default" apart from an explicit 0.0.
	Temperature  *float64
	MaxTokens    int
	Model        string // Override default model
	SystemPrompt string
	// JSONMode asks the backend to constrain output to a JSON value when it can.
	JSONMode bool
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = &temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(o *Options) {
		o.SystemPrompt = prompt
	}
}

func WithJSONMode() Option {
	return func(o *Options) {
		o.JSONMode = true
	}
}

// Apply folds opts over a set of defaults.
func Apply(defaults Options, opts ...Option) *Options {
	o := defaults
	for _, opt := range opts {
		opt(&o)
	}
	return &o
}

// TemperatureOr returns the requested temperature or fallback when none was set.
func (o *Options) TemperatureOr(fallback float64) float64 {
	if o.Temperature == nil {
		return fallback
	}
	return *o.Temperature
}

// WithLeadingSystem returns messages with the system prompt placed first,
// for backends that only understand system instructions as a message.
func WithLeadingSystem(systemPrompt string, messages []Message) []Message {
	if systemPrompt == "" {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: systemPrompt})
	return append(out, messages...)
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}
