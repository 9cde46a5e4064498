// Package llm provides interfaces and utilities for Large Language Model (LLM) providers.
//
// It defines the Provider interface that all LLM implementations must satisfy,
// along with generation options shared across providers.
package llm

import "context"

// Provider defines the interface for LLM providers.
//
// All LLM implementations (OpenAI, Gemini, Anthropic, Ollama) must implement
// this interface.
type Provider interface {
	// Complete generates text from a prompt.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - prompt: The input prompt text
	//   - opts: Optional generation parameters (system prompt, temperature, etc.)
	//
	// Returns the generated text, verbatim, and any error. Providers never
	// parse or post-process the model output; that is the caller's job.
	Complete(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// Close closes the provider and releases resources.
	Close() error
}

// GenerateOptions contains options for text generation.
//
// Fields left unset are not sent on the wire, so the provider's own defaults
// apply. Providers silently ignore knobs their API does not expose.
type GenerateOptions struct {
	// System is an optional system prompt sent alongside the user prompt.
	System string

	// Temperature controls randomness (0.0-2.0). Higher = more random.
	Temperature *float64

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens *int

	// TopP controls nucleus sampling (0.0-1.0). Higher = more diverse.
	TopP *float64

	// TopK restricts sampling to the K most likely tokens.
	TopK *int

	// Stop contains stop sequences that will end generation.
	Stop []string
}

// GenerateOption is a function type for configuring generation options.
type GenerateOption func(*GenerateOptions)

// WithSystem sets the system prompt for the request.
//
// Example:
//
//	text, _ := provider.Complete(ctx, "Hello", llm.WithSystem("You are terse."))
func WithSystem(system string) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.System = system
	}
}

// WithTemperature sets the temperature for text generation.
//
// Temperature controls randomness: 0.0 = deterministic, 2.0 = very random.
//
// Example:
//
//	text, _ := provider.Complete(ctx, "Hello", llm.WithTemperature(0.7))
func WithTemperature(temp float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = &temp
	}
}

// WithMaxTokens sets the maximum number of tokens in the response.
//
// Example:
//
//	text, _ := provider.Complete(ctx, "Hello", llm.WithMaxTokens(100))
func WithMaxTokens(max int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = &max
	}
}

// WithTopP sets the top-p (nucleus sampling) parameter.
//
// TopP controls diversity: 0.0 = most likely tokens only, 1.0 = all tokens.
//
// Example:
//
//	text, _ := provider.Complete(ctx, "Hello", llm.WithTopP(0.9))
func WithTopP(topP float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.TopP = &topP
	}
}

// WithTopK sets the top-k sampling parameter. Providers without a top-k knob
// (OpenAI, Anthropic) ignore it.
func WithTopK(topK int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.TopK = &topK
	}
}

// WithStop sets the stop sequences that end generation.
func WithStop(stop ...string) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Stop = stop
	}
}

// ApplyGenerateOptions applies a slice of GenerateOption functions to create GenerateOptions.
//
// This is a helper function used internally by LLM implementations. No
// defaults are filled in here; absent fields stay absent on the wire.
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
