package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/memorylane-ai/memorylane/pkg/core"
)

// CaptureMode identifies which input legs contributed to a recording.
type CaptureMode string

const (
	CaptureMicrophoneOnly CaptureMode = "microphone_only"
	CaptureMixed          CaptureMode = "mixed"
)

// Chunk is one captured or submitted audio frame. Chunks are immutable
// once recorded and ordered by session-relative offset.
type Chunk struct {
	Data      []byte
	Timestamp time.Time
	Offset    time.Duration
	Leg       Leg
}

// Result is the finalized output of a stopped engine.
type Result struct {
	Blob            []byte
	Metrics         QualityMetrics
	DurationSeconds float64
	ByteSize        int
	SampleRate      int
	BitRate         int
	CaptureMode     CaptureMode
}

// Engine owns the audio mixing graph for one recording session: a
// microphone leg, an optional secondary leg, an agent (synthesized
// voice) input, gain stages, the ducking controller, and the quality
// sampler. It emits one mixed stream on Stop.
type Engine struct {
	config EngineConfig
	logger *slog.Logger

	mic       CaptureDevice
	secondary CaptureDevice
	playback  PlaybackDevice

	ducker  *Ducker
	sampler *QualitySampler

	mu           sync.Mutex
	running      bool
	startTime    time.Time
	opts         StartOptions
	hasSecond    bool
	micTrack     []byte
	agentChunks  []Chunk
	timers       []*time.Timer
	result       *Result
	cancel       context.CancelFunc
	closed       bool
	secondaryErr error

	events chan Event
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSecondaryDevice sets the device used for the secondary
// (system/agent) capture leg.
func WithSecondaryDevice(d CaptureDevice) EngineOption {
	return func(e *Engine) { e.secondary = d }
}

// WithPlayback sets the output device agent frames are played through.
func WithPlayback(p PlaybackDevice) EngineOption {
	return func(e *Engine) { e.playback = p }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine over the given microphone device.
func NewEngine(config EngineConfig, mic CaptureDevice, opts ...EngineOption) *Engine {
	e := &Engine{
		config:  config,
		logger:  slog.Default(),
		mic:     mic,
		ducker:  NewDucker(config.Ducking),
		sampler: NewQualitySampler(config),
		events:  make(chan Event, 64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Events returns the engine's event stream. The channel is closed
// after the SessionDrainedEvent has been posted.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Start acquires the input legs and begins capture. Microphone
// acquisition failure is fatal. Secondary-leg failure is logged and
// the session continues microphone-only.
func (e *Engine) Start(ctx context.Context, opts StartOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return core.NewInvalidRequestError("engine already started")
	}
	if e.result != nil {
		return core.NewInvalidRequestError("engine already finalized")
	}

	ctx, cancel := context.WithCancel(ctx)

	if err := e.mic.Start(ctx, e.onMicFrame); err != nil {
		cancel()
		return core.NewPermissionError("microphone acquisition failed", err)
	}

	e.hasSecond = false
	e.secondaryErr = nil
	if opts.EnableSecondaryCapture && e.secondary != nil {
		if err := e.secondary.Start(ctx, e.onSecondaryFrame); err != nil {
			e.secondaryErr = core.NewSecondaryCaptureError(err)
			e.logger.Warn("secondary audio leg unavailable, continuing microphone-only",
				"error", e.secondaryErr)
		} else {
			e.hasSecond = true
		}
	}

	e.cancel = cancel
	e.opts = opts
	e.running = true
	e.startTime = time.Now()
	e.micTrack = e.micTrack[:0]
	e.agentChunks = nil
	e.result = nil

	if e.config.QualityIntervalMs > 0 {
		go e.sampleLoop(ctx, time.Duration(e.config.QualityIntervalMs)*time.Millisecond)
	}

	e.logger.Info("audio engine started",
		"sample_rate", e.config.Audio.SampleRate,
		"secondary_audio", e.hasSecond)
	return nil
}

// sampleLoop recomputes quality metrics on a fixed interval until the
// session stops.
func (e *Engine) sampleLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			running := e.running
			e.mu.Unlock()
			if !running {
				return
			}
			e.post(QualityUpdatedEvent{Metrics: e.sampler.Sample()})
		}
	}
}

// HasSecondaryAudio reports whether the secondary capture leg is live.
func (e *Engine) HasSecondaryAudio() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasSecond
}

// SecondaryCaptureError returns the typed error from a failed
// secondary-leg acquisition, or nil when the leg started or was never
// requested.
func (e *Engine) SecondaryCaptureError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.secondaryErr
}

func (e *Engine) onMicFrame(pcm []byte) {
	e.sampler.ObserveMic(pcm)

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	gain := e.opts.EffectiveMicrophoneGain() * e.ducker.Gain()
	processed := ApplyGain(pcm, gain)
	offset := e.config.Audio.Duration(len(e.micTrack))
	e.micTrack = append(e.micTrack, processed...)
	e.mu.Unlock()

	e.post(ChunkReadyEvent{
		Leg:        LegMicrophone,
		Offset:     offset,
		DurationMs: e.config.Audio.DurationMs(len(pcm)),
	})
}

func (e *Engine) onSecondaryFrame(pcm []byte) {
	// Secondary capture feeds the agent track directly; it is the
	// system-audio rendition of the same synthesized voice.
	e.SubmitAgentFrame(pcm, time.Now())
}

// SubmitAgentFrame records one synthesized-voice frame. The frame is
// stamped with its session-relative offset and appended to the ordered
// agent-chunk list. Playback is immediate, or deferred by the
// configured buffer delay; the delay is a scheduling offset only and
// never reorders chunks.
func (e *Engine) SubmitAgentFrame(pcm []byte, arrival time.Time) {
	e.sampler.ObserveAgent(pcm)

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	offset := arrival.Sub(e.startTime)
	if offset < 0 {
		offset = 0
	}
	data := make([]byte, len(pcm))
	copy(data, pcm)
	chunk := Chunk{Data: data, Timestamp: arrival, Offset: offset, Leg: LegAgent}
	e.agentChunks = append(e.agentChunks, chunk)

	delay := time.Duration(e.config.AgentBufferDelayMs) * time.Millisecond
	if e.playback != nil {
		if delay > 0 {
			t := time.AfterFunc(delay, func() { e.playAgent(data) })
			e.timers = append(e.timers, t)
		} else {
			go e.playAgent(data)
		}
	}
	e.mu.Unlock()

	e.post(ChunkReadyEvent{
		Leg:        LegAgent,
		Offset:     offset,
		DurationMs: e.config.Audio.DurationMs(len(pcm)),
	})
}

func (e *Engine) playAgent(pcm []byte) {
	if err := e.playback.Play(pcm); err != nil {
		e.logger.Warn("agent audio playback failed", "error", err)
	}
}

// SetDucking toggles the ducking controller. Engaging cancels any
// pending release.
func (e *Engine) SetDucking(agentSpeaking bool) {
	if agentSpeaking {
		e.ducker.Duck()
	} else {
		e.ducker.Release()
	}
}

// ScheduleDuckingRelease arms a delayed release, used for the
// re-listen cool-down after agent speech ends.
func (e *Engine) ScheduleDuckingRelease(delay time.Duration) {
	e.ducker.ScheduleRelease(delay)
}

// SampleQuality returns a quality snapshot. It never blocks capture.
func (e *Engine) SampleQuality() QualityMetrics {
	return e.sampler.Sample()
}

// Stop halts all input legs, overlays the agent track onto the
// microphone track, and returns the mixed blob with final metrics.
// Idempotent: a second call returns the same finalized result.
func (e *Engine) Stop() (*Result, error) {
	e.mu.Lock()
	if e.result != nil {
		result := e.result
		e.mu.Unlock()
		return result, nil
	}
	if !e.running {
		e.mu.Unlock()
		return nil, core.NewInvalidRequestError("engine not started")
	}
	e.running = false
	for _, t := range e.timers {
		t.Stop()
	}
	e.timers = nil
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	if err := e.mic.Stop(); err != nil {
		e.logger.Warn("microphone stop failed", "error", err)
	}
	if e.hasSecond && e.secondary != nil {
		if err := e.secondary.Stop(); err != nil {
			e.logger.Warn("secondary capture stop failed", "error", err)
		}
	}
	e.ducker.Stop()

	e.mu.Lock()
	mixed := e.mixLocked()
	metrics := e.sampler.Sample()

	mode := CaptureMicrophoneOnly
	if len(e.agentChunks) > 0 || e.hasSecond {
		mode = CaptureMixed
	}

	cfg := e.config.Audio
	result := &Result{
		Blob:            PCMToWAV(mixed, cfg),
		Metrics:         metrics,
		DurationSeconds: cfg.DurationSeconds(len(mixed)),
		ByteSize:        len(mixed) + 44,
		SampleRate:      cfg.SampleRate,
		BitRate:         cfg.BytesPerSecond() * 8,
		CaptureMode:     mode,
	}
	e.result = result
	e.mu.Unlock()

	e.post(SessionDrainedEvent{Result: result})
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	close(e.events)

	e.logger.Info("audio engine stopped",
		"duration_s", result.DurationSeconds,
		"bytes", result.ByteSize,
		"mode", result.CaptureMode)
	return result, nil
}

// mixLocked overlays every agent chunk onto the microphone track at its
// session-relative offset with saturating addition. The mixed stream is
// at least as long as the microphone capture and extends past it when
// agent audio runs longer.
func (e *Engine) mixLocked() []byte {
	total := len(e.micTrack)
	for _, c := range e.agentChunks {
		end := e.offsetBytes(c.Offset) + len(c.Data)
		if end > total {
			total = end
		}
	}

	mixed := make([]byte, total)
	copy(mixed, e.micTrack)

	agentGain := e.opts.EffectiveAgentGain()
	for _, c := range e.agentChunks {
		data := ApplyGain(c.Data, agentGain)
		start := e.offsetBytes(c.Offset)
		for i := 0; i+1 < len(data); i += 2 {
			j := start + i
			if j+1 >= len(mixed) {
				break
			}
			sa := int32(int16(mixed[j]) | int16(mixed[j+1])<<8)
			sb := int32(int16(data[i]) | int16(data[i+1])<<8)
			sum := sa + sb
			if sum > 32767 {
				sum = 32767
			} else if sum < -32768 {
				sum = -32768
			}
			v := int16(sum)
			mixed[j] = byte(v)
			mixed[j+1] = byte(v >> 8)
		}
	}
	return mixed
}

// offsetBytes converts a session-relative offset to an even byte index.
func (e *Engine) offsetBytes(offset time.Duration) int {
	ms := int(offset / time.Millisecond)
	n := e.config.Audio.BytesForDurationMs(ms)
	return n &^ 1
}

func (e *Engine) post(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.events <- ev:
	default:
		// Owner is not draining; capture must never block.
	}
}
