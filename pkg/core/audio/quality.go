package audio

import (
	"math"
	"sync"
)

// QualityMetrics is a point-in-time snapshot of recording quality.
type QualityMetrics struct {
	MicLevel   float64 `json:"mic_level"`
	AgentLevel float64 `json:"agent_level"`
	Clipping   bool    `json:"clipping"`
	SNR        float64 `json:"snr_db"`
}

// QualitySampler computes rolling quality metrics over recent audio.
// Sampling never blocks capture: writers append under a short lock
// and snapshots are computed from copied window data.
type QualitySampler struct {
	mu     sync.Mutex
	config EngineConfig

	micWindow   *Buffer
	agentWindow *Buffer

	// noiseFloor tracks the quietest mic RMS observed, used as the
	// denominator of the SNR estimate.
	noiseFloor float64

	last QualityMetrics
}

// NewQualitySampler creates a sampler with rolling windows sized from
// the engine configuration.
func NewQualitySampler(config EngineConfig) *QualitySampler {
	return &QualitySampler{
		config:      config,
		micWindow:   NewBuffer(config.Audio, config.QualityWindowMs),
		agentWindow: NewBuffer(config.Audio, config.QualityWindowMs),
	}
}

// ObserveMic feeds captured microphone PCM into the rolling window.
func (q *QualitySampler) ObserveMic(pcm []byte) {
	q.micWindow.Write(pcm)
}

// ObserveAgent feeds synthesized-voice PCM into the rolling window.
func (q *QualitySampler) ObserveAgent(pcm []byte) {
	q.agentWindow.Write(pcm)
}

// Sample recomputes and returns the current metrics.
func (q *QualitySampler) Sample() QualityMetrics {
	mic := q.micWindow.Read()
	agent := q.agentWindow.Read()

	q.mu.Lock()
	defer q.mu.Unlock()

	micRMS := RMSEnergy(mic)
	agentRMS := RMSEnergy(agent)
	peak := PeakAmplitude(mic)

	if micRMS > 0 && (q.noiseFloor == 0 || micRMS < q.noiseFloor) {
		q.noiseFloor = micRMS
	}

	snr := 0.0
	if q.noiseFloor > 0 && micRMS > q.noiseFloor {
		snr = 20 * math.Log10(micRMS/q.noiseFloor)
	}

	q.last = QualityMetrics{
		MicLevel:   micRMS,
		AgentLevel: agentRMS,
		Clipping:   peak >= q.config.ClippingThreshold,
		SNR:        snr,
	}
	return q.last
}

// Last returns the most recently computed metrics without recomputing.
func (q *QualitySampler) Last() QualityMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.last
}
