package audio

import (
	"sync"
	"time"
)

// DuckState represents the ducking controller state.
type DuckState string

const (
	DuckIdle   DuckState = "idle"
	DuckActive DuckState = "active"
)

// Ducker attenuates the microphone leg while the agent is speaking.
// It is a two-state controller with asymmetric ramps: a fast attack
// when ducking engages and a slower release when it disengages, so
// the agent's onset is never clipped by a late duck and the return
// to full level does not pump.
type Ducker struct {
	mu     sync.Mutex
	config DuckingConfig
	state  DuckState

	// rampStart and rampFrom describe the ramp in progress. Gain is
	// interpolated between rampFrom and the state's target level.
	rampStart time.Time
	rampFrom  float64

	releaseTimer *time.Timer
	now          func() time.Time
}

// NewDucker creates a ducking controller in the idle state.
func NewDucker(config DuckingConfig) *Ducker {
	return &Ducker{
		config:   config,
		state:    DuckIdle,
		rampFrom: 1.0,
		now:      time.Now,
	}
}

// Duck engages attenuation immediately. Any pending release is
// cancelled: the attack always pre-empts a scheduled release.
func (d *Ducker) Duck() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.releaseTimer != nil {
		d.releaseTimer.Stop()
		d.releaseTimer = nil
	}
	if d.state == DuckActive {
		return
	}
	d.rampFrom = d.gainLocked()
	d.rampStart = d.now()
	d.state = DuckActive
}

// ScheduleRelease arms a release after the given delay. A subsequent
// Duck call before the delay elapses cancels it.
func (d *Ducker) ScheduleRelease(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != DuckActive {
		return
	}
	if d.releaseTimer != nil {
		d.releaseTimer.Stop()
	}
	if delay <= 0 {
		d.releaseLocked()
		return
	}
	d.releaseTimer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.releaseTimer = nil
		if d.state == DuckActive {
			d.releaseLocked()
		}
	})
}

// Release disengages attenuation immediately, starting the release ramp.
func (d *Ducker) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.releaseTimer != nil {
		d.releaseTimer.Stop()
		d.releaseTimer = nil
	}
	if d.state == DuckActive {
		d.releaseLocked()
	}
}

func (d *Ducker) releaseLocked() {
	d.rampFrom = d.gainLocked()
	d.rampStart = d.now()
	d.state = DuckIdle
}

// State returns the current controller state.
func (d *Ducker) State() DuckState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Gain returns the current microphone gain multiplier, interpolated
// along the ramp in progress.
func (d *Ducker) Gain() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gainLocked()
}

func (d *Ducker) gainLocked() float64 {
	var target float64
	var rampMs int
	if d.state == DuckActive {
		target = d.config.Amount
		rampMs = d.config.AttackMs
	} else {
		target = 1.0
		rampMs = d.config.ReleaseMs
	}

	if d.rampStart.IsZero() || rampMs <= 0 {
		return target
	}

	elapsed := d.now().Sub(d.rampStart)
	ramp := time.Duration(rampMs) * time.Millisecond
	if elapsed >= ramp {
		return target
	}

	frac := float64(elapsed) / float64(ramp)
	return d.rampFrom + (target-d.rampFrom)*frac
}

// Stop cancels any pending release timer.
func (d *Ducker) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.releaseTimer != nil {
		d.releaseTimer.Stop()
		d.releaseTimer = nil
	}
}
