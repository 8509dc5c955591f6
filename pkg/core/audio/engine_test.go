package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/memorylane-ai/memorylane/pkg/core"
)

// fakeDevice is a capture device driven by the test.
type fakeDevice struct {
	startErr error
	onFrame  FrameFunc
	stopped  bool
}

func (f *fakeDevice) Start(ctx context.Context, onFrame FrameFunc) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.onFrame = onFrame
	return nil
}

func (f *fakeDevice) Stop() error {
	f.stopped = true
	return nil
}

func testEngineConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.Audio.SampleRate = 1000 // 2000 bytes/s keeps test buffers small
	return cfg
}

func TestEngineMicFailureIsFatal(t *testing.T) {
	mic := &fakeDevice{startErr: errors.New("device denied")}
	e := NewEngine(testEngineConfig(), mic)

	err := e.Start(context.Background(), StartOptions{})
	if err == nil {
		t.Fatal("Start() succeeded with failing microphone")
	}
	if core.TypeOf(err) != core.ErrPermission {
		t.Errorf("error type = %v, want %v", core.TypeOf(err), core.ErrPermission)
	}
}

func TestEngineSecondaryFailureIsNonFatal(t *testing.T) {
	mic := &fakeDevice{}
	sec := &fakeDevice{startErr: errors.New("no loopback device")}
	e := NewEngine(testEngineConfig(), mic, WithSecondaryDevice(sec))

	if err := e.Start(context.Background(), StartOptions{EnableSecondaryCapture: true}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if e.HasSecondaryAudio() {
		t.Error("HasSecondaryAudio() = true, want false")
	}
	if got := core.TypeOf(e.SecondaryCaptureError()); got != core.ErrSecondaryCapture {
		t.Errorf("SecondaryCaptureError() type = %v, want %v", got, core.ErrSecondaryCapture)
	}
	res, err := e.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if res.CaptureMode != CaptureMicrophoneOnly {
		t.Errorf("CaptureMode = %v, want %v", res.CaptureMode, CaptureMicrophoneOnly)
	}
}

func TestEngineMixedDurationCoversAgentAudio(t *testing.T) {
	mic := &fakeDevice{}
	e := NewEngine(testEngineConfig(), mic)

	if err := e.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cfg := testEngineConfig().Audio
	mic.onFrame(make([]byte, cfg.BytesForDurationMs(100)))

	// Agent frame landing past the end of the mic capture.
	start := e.startTime
	e.SubmitAgentFrame(make([]byte, cfg.BytesForDurationMs(200)), start.Add(150*time.Millisecond))

	res, err := e.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if res.CaptureMode != CaptureMixed {
		t.Errorf("CaptureMode = %v, want %v", res.CaptureMode, CaptureMixed)
	}
	micDur := cfg.DurationSeconds(cfg.BytesForDurationMs(100))
	if res.DurationSeconds < micDur {
		t.Errorf("DurationSeconds = %v, want >= %v", res.DurationSeconds, micDur)
	}
	if res.DurationSeconds < 0.340 {
		t.Errorf("DurationSeconds = %v, want agent tail included (~0.35s)", res.DurationSeconds)
	}
}

func TestEngineStopIsIdempotent(t *testing.T) {
	mic := &fakeDevice{}
	e := NewEngine(testEngineConfig(), mic)

	if err := e.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	mic.onFrame(make([]byte, 200))

	first, err := e.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	second, err := e.Stop()
	if err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if first != second {
		t.Error("second Stop() did not return the same finalized result")
	}
	if !mic.stopped {
		t.Error("microphone device was not stopped")
	}
}

func TestEngineEmitsDrainedEvent(t *testing.T) {
	mic := &fakeDevice{}
	e := NewEngine(testEngineConfig(), mic)

	if err := e.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	mic.onFrame(make([]byte, 100))

	if _, err := e.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	var drained bool
	for ev := range e.Events() {
		if _, ok := ev.(SessionDrainedEvent); ok {
			drained = true
		}
	}
	if !drained {
		t.Error("no SessionDrainedEvent posted before channel close")
	}
}

func TestEngineWAVBlob(t *testing.T) {
	mic := &fakeDevice{}
	e := NewEngine(testEngineConfig(), mic)

	if err := e.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	mic.onFrame(make([]byte, 100))

	res, err := e.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if string(res.Blob[0:4]) != "RIFF" || string(res.Blob[8:12]) != "WAVE" {
		t.Error("blob is not a WAV container")
	}
	if len(res.Blob) != res.ByteSize {
		t.Errorf("ByteSize = %d, blob len = %d", res.ByteSize, len(res.Blob))
	}
}

func TestEngineQualitySampleNonBlocking(t *testing.T) {
	mic := &fakeDevice{}
	e := NewEngine(testEngineConfig(), mic)

	if err := e.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	mic.onFrame(pcm16(16384, -16384, 16384, -16384))

	m := e.SampleQuality()
	if m.MicLevel <= 0 {
		t.Errorf("MicLevel = %v, want > 0", m.MicLevel)
	}
	if _, err := e.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}
