package audio

import (
	"math"
	"testing"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func TestRMSEnergy(t *testing.T) {
	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{"empty", nil, 0},
		{"silence", pcm16(0, 0, 0, 0), 0},
		{"full scale", pcm16(32767, 32767), 0.9999},
		{"half scale", pcm16(16384, -16384), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMSEnergy(tt.pcm)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("RMSEnergy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPeakAmplitude(t *testing.T) {
	if got := PeakAmplitude(pcm16(100, -32768, 200)); math.Abs(got-1.0) > 0.001 {
		t.Errorf("PeakAmplitude() = %v, want 1.0", got)
	}
	if got := PeakAmplitude(nil); got != 0 {
		t.Errorf("PeakAmplitude(nil) = %v, want 0", got)
	}
}

func TestApplyGain(t *testing.T) {
	in := pcm16(1000, -1000)
	out := ApplyGain(in, 0.5)
	want := pcm16(500, -500)
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("ApplyGain() = %v, want %v", out, want)
		}
	}
	// unity gain copies
	out = ApplyGain(in, 1.0)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("ApplyGain(1.0) altered samples")
		}
	}
}

func TestMixPCMSaturates(t *testing.T) {
	out := MixPCM(pcm16(30000), pcm16(30000))
	got := int16(out[0]) | int16(out[1])<<8
	if got != 32767 {
		t.Errorf("MixPCM saturation = %d, want 32767", got)
	}
}

func TestBufferMaxSize(t *testing.T) {
	cfg := DefaultConfig()
	b := NewBuffer(cfg, 10) // 10ms window
	maxBytes := cfg.BytesForDurationMs(10)

	b.Write(make([]byte, maxBytes*3))
	if b.Len() != maxBytes {
		t.Errorf("Len() = %d, want %d", b.Len(), maxBytes)
	}
}

func TestBufferReadLast(t *testing.T) {
	cfg := DefaultConfig()
	b := NewBuffer(cfg, 0)
	b.Write([]byte{1, 2, 3, 4, 5, 6})

	got := b.ReadLast(1000) // longer than buffered
	if len(got) != 6 {
		t.Errorf("ReadLast() len = %d, want 6", len(got))
	}
}
