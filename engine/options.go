package engine

import (
	"github.com/tbxark/formchat/document"
	"github.com/tbxark/formchat/prompt"
)

const (
	DefaultModel       = "gpt-4o"
	DefaultMaxTokens   = 500
	DefaultTemperature = float32(0.7)
	DefaultApology     = "I apologize, but I encountered an error processing your request. Please try again."
)

type engineOptions struct {
	documents   document.Provider
	builder     *prompt.Builder
	model       string
	visionModel string
	maxTokens   int
	temperature float32
	language    string
	apology     string
}

type Option func(*engineOptions)

// WithDocumentProvider resolves document identifiers passed to CreateSession.
func WithDocumentProvider(p document.Provider) Option {
	return func(o *engineOptions) {
		o.documents = p
	}
}

func WithPromptBuilder(b *prompt.Builder) Option {
	return func(o *engineOptions) {
		o.builder = b
	}
}

// WithModel sets the model name sent with every request.
func WithModel(name string) Option {
	return func(o *engineOptions) {
		o.model = name
	}
}

// WithVisionModel sets the model name used once the transcript carries images.
func WithVisionModel(name string) Option {
	return func(o *engineOptions) {
		o.visionModel = name
	}
}

func WithMaxTokens(n int) Option {
	return func(o *engineOptions) {
		o.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature, clamped to [0,1].
func WithTemperature(t float32) Option {
	return func(o *engineOptions) {
		o.temperature = min(max(t, 0), 1)
	}
}

// WithLanguage sets the conversation language for new sessions.
func WithLanguage(lang string) Option {
	return func(o *engineOptions) {
		o.language = lang
	}
}

// WithApology overrides the assistant message shown when the model call fails.
func WithApology(text string) Option {
	return func(o *engineOptions) {
		o.apology = text
	}
}
