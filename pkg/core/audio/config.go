package audio

import "time"

// Leg identifies the input leg a chunk was captured from.
type Leg string

const (
	// LegMicrophone is the user's microphone input.
	LegMicrophone Leg = "microphone"
	// LegAgent is the synthesized-voice input.
	LegAgent Leg = "agent"
)

// Config specifies audio format parameters.
type Config struct {
	// SampleRate in Hz. Fixed at engine initialization, never renegotiated
	// mid-session. Common values: 16000, 24000, 44100, 48000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultConfig returns the standard audio configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:    24000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c Config) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// DurationSeconds returns the duration in seconds for the given byte count.
func (c Config) DurationSeconds(bytes int) float64 {
	bps := c.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return float64(bytes) / float64(bps)
}

// Duration returns the duration of the given byte count.
func (c Config) Duration(bytes int) time.Duration {
	return time.Duration(c.DurationMs(bytes)) * time.Millisecond
}

// BytesForDurationMs returns the byte count for the given duration in milliseconds.
func (c Config) BytesForDurationMs(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}

// DuckingConfig configures the two-state gain ducking controller.
type DuckingConfig struct {
	// Amount is the linear multiplier applied to the microphone gain while
	// ducked. A value of 0.3 with microphone gain 1.0 yields a 0.3 target.
	Amount float64 `json:"amount"`

	// AttackMs is the time constant for moving into the ducked state.
	// Default: 50.
	AttackMs int `json:"attack_ms"`

	// ReleaseMs is the time constant for moving back to the full gain.
	// Default: 400.
	ReleaseMs int `json:"release_ms"`
}

// DefaultDuckingConfig returns a DuckingConfig with sensible defaults.
func DefaultDuckingConfig() DuckingConfig {
	return DuckingConfig{
		Amount:    0.3,
		AttackMs:  50,
		ReleaseMs: 400,
	}
}

// EngineConfig holds all configuration for the mixing engine.
type EngineConfig struct {
	// Audio is the fixed audio format for the session.
	Audio Config `json:"audio"`

	// Ducking configures the microphone gain ducking controller.
	Ducking DuckingConfig `json:"ducking"`

	// AgentBufferDelayMs defers agent-frame playback by this many
	// milliseconds before mixing. The delay is a pure scheduling offset; it
	// never reorders chunks. 0 plays frames immediately.
	AgentBufferDelayMs int `json:"agent_buffer_delay_ms"`

	// QualityIntervalMs is how often the quality sampler recomputes the
	// rolling metrics while recording. Default: 500.
	QualityIntervalMs int `json:"quality_interval_ms"`

	// QualityWindowMs is how much recent audio each quality sample covers.
	// Default: 2000.
	QualityWindowMs int `json:"quality_window_ms"`

	// ClippingThreshold is the peak amplitude above which the clipping flag
	// is raised. Default: 0.99.
	ClippingThreshold float64 `json:"clipping_threshold"`
}

// DefaultEngineConfig returns an EngineConfig with sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Audio:             DefaultConfig(),
		Ducking:           DefaultDuckingConfig(),
		AgentBufferDelayMs: 0,
		QualityIntervalMs: 500,
		QualityWindowMs:   2000,
		ClippingThreshold: 0.99,
	}
}

// StartOptions configures a single engine start.
type StartOptions struct {
	// EnableSecondaryCapture requests acquisition of the agent-audio leg.
	// Failure to acquire it is non-fatal; the engine continues in
	// microphone-only mode.
	EnableSecondaryCapture bool

	// MicrophoneGain is the linear gain applied to the microphone leg, in
	// [0,1]. Zero means use 1.0.
	MicrophoneGain float64

	// AgentGain is the linear gain applied to the agent leg, in [0,1].
	// Zero means use 1.0.
	AgentGain float64
}

// EffectiveMicrophoneGain returns the microphone gain, defaulting to 1.0.
func (o StartOptions) EffectiveMicrophoneGain() float64 {
	if o.MicrophoneGain <= 0 {
		return 1.0
	}
	return o.MicrophoneGain
}

// EffectiveAgentGain returns the agent gain, defaulting to 1.0.
func (o StartOptions) EffectiveAgentGain() float64 {
	if o.AgentGain <= 0 {
		return 1.0
	}
	return o.AgentGain
}
