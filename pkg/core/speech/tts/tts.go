// Package tts provides the text-to-speech collaborator.
package tts

import "context"

// Provider is a text-to-speech service.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to one complete audio payload.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) ([]byte, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string  // voice identifier
	Speed      float64 // speed multiplier, 0 keeps the provider default
	Language   string  // language code
	SampleRate int     // PCM sample rate in Hz
}
