package audio

import "context"

// FrameFunc receives one captured PCM frame. Implementations must not
// retain the slice past the call.
type FrameFunc func(pcm []byte)

// CaptureDevice is an audio input leg. Start begins delivering frames
// to the callback until Stop is called or the context is cancelled.
type CaptureDevice interface {
	Start(ctx context.Context, onFrame FrameFunc) error
	Stop() error
}

// PlaybackDevice plays PCM audio out of a speaker or equivalent sink.
type PlaybackDevice interface {
	Play(pcm []byte) error
	Close() error
}
