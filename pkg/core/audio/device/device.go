// Package device provides real capture and playback devices for the
// mixing engine: malgo for the microphone and loopback legs, oto for
// the speaker.
package device

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/memorylane-ai/memorylane/pkg/core/audio"
)

// System owns the shared audio backends. One System serves every
// session on the process.
type System struct {
	malgoCtx *malgo.AllocatedContext
	otoCtx   *oto.Context
	config   audio.Config
}

// NewSystem initializes the audio backends.
func NewSystem(config audio.Config) (*System, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init capture context: %w", err)
	}

	// ~100ms buffer keeps playback latency low without glitching.
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		malgoCtx.Uninit()
		return nil, fmt.Errorf("init playback context: %w", err)
	}
	<-ready

	return &System{malgoCtx: malgoCtx, otoCtx: otoCtx, config: config}, nil
}

// Close releases the audio backends.
func (s *System) Close() {
	if s.malgoCtx != nil {
		s.malgoCtx.Uninit()
	}
}

// Microphone returns a capture device for the default microphone.
func (s *System) Microphone() audio.CaptureDevice {
	return &captureDevice{system: s, deviceType: malgo.Capture}
}

// Loopback returns a capture device for system audio output, used as
// the secondary (agent) leg where the OS supports it.
func (s *System) Loopback() audio.CaptureDevice {
	return &captureDevice{system: s, deviceType: malgo.Loopback}
}

// Speaker returns a playback device for the default output.
func (s *System) Speaker() audio.PlaybackDevice {
	sp := &speaker{otoCtx: s.otoCtx}
	sp.cond = sync.NewCond(&sp.mu)
	return sp
}

type captureDevice struct {
	system     *System
	deviceType malgo.DeviceType

	mu     sync.Mutex
	device *malgo.Device
}

func (d *captureDevice) Start(ctx context.Context, onFrame audio.FrameFunc) error {
	cfg := d.system.config
	deviceConfig := malgo.DefaultDeviceConfig(d.deviceType)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			onFrame(pInputSamples)
		},
	}

	device, err := malgo.InitDevice(d.system.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	d.mu.Lock()
	d.device = device
	d.mu.Unlock()

	context.AfterFunc(ctx, func() { d.Stop() })
	return nil
}

func (d *captureDevice) Stop() error {
	d.mu.Lock()
	device := d.device
	d.device = nil
	d.mu.Unlock()

	if device == nil {
		return nil
	}
	if err := device.Stop(); err != nil {
		device.Uninit()
		return err
	}
	device.Uninit()
	return nil
}

// speaker streams queued PCM through a single oto player. The player
// pulls from the buffer via Read, so writes never block on playback.
type speaker struct {
	otoCtx *oto.Context

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	player *oto.Player
	closed bool
}

func (s *speaker) Play(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	s.buf = append(s.buf, pcm...)
	s.cond.Signal()

	if s.player == nil {
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	return nil
}

// Read feeds the oto player, blocking until audio is queued.
func (s *speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return 0, io.EOF
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *speaker) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	player := s.player
	s.mu.Unlock()

	if player != nil {
		return player.Close()
	}
	return nil
}
