// Package stt provides the speech-to-text collaborator.
package stt

import "context"

// Provider is a speech-to-text service.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts one complete audio payload to text. The mime
	// type hints the container format ("audio/wav", "audio/ogg", ...).
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)

	// NewStream opens a live transcription session. Audio is sent
	// incrementally and deltas are received on a channel.
	NewStream(ctx context.Context, opts StreamOptions) (*Stream, error)
}

// StreamOptions configures a live transcription session.
type StreamOptions struct {
	Model      string // provider-specific model
	Language   string // ISO language code, default "en"
	SampleRate int    // PCM sample rate in Hz
}

// Delta is one streaming transcript update.
type Delta struct {
	Text    string
	IsFinal bool
}
