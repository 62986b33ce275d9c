package capture

import (
	"context"
	"math"
	"testing"
)

func TestMockSource_FrameShape(t *testing.T) {
	m := NewMockSource(512, 44100)
	m.SetTone(300, 0.5, 0)

	frame, err := m.AcquireFrame(context.Background())
	if err != nil {
		t.Fatalf("AcquireFrame: %v", err)
	}

	if frame.Len() != 512 {
		t.Errorf("frame length %d, want 512", frame.Len())
	}
	if frame.SampleRate != 44100 {
		t.Errorf("sample rate %d, want 44100", frame.SampleRate)
	}
	for ch, samples := range frame.Channels {
		if len(samples) != 512 {
			t.Errorf("channel %d length %d, want 512", ch, len(samples))
		}
		for i, v := range samples {
			if v < -1 || v > 1 {
				t.Fatalf("channel %d sample %d out of range: %f", ch, i, v)
			}
		}
	}
	if frame.Stale {
		t.Error("fresh frame marked stale")
	}
}

func TestMockSource_Silence(t *testing.T) {
	m := NewMockSource(256, 44100)

	frame, err := m.AcquireFrame(context.Background())
	if err != nil {
		t.Fatalf("AcquireFrame: %v", err)
	}

	for ch, samples := range frame.Channels {
		for _, v := range samples {
			if v != 0 {
				t.Fatalf("channel %d not silent: %f", ch, v)
			}
		}
	}
}

func TestMockSource_FailNextReturnsStale(t *testing.T) {
	m := NewMockSource(256, 44100)
	m.SetTone(440, 0.5, 90)

	first, err := m.AcquireFrame(context.Background())
	if err != nil {
		t.Fatalf("AcquireFrame: %v", err)
	}

	m.FailNext()
	stale, err := m.AcquireFrame(context.Background())
	if err != nil {
		t.Fatalf("AcquireFrame: %v", err)
	}

	if !stale.Stale {
		t.Error("expected stale frame after failure")
	}
	for ch := range stale.Channels {
		for i := range stale.Channels[ch] {
			if stale.Channels[ch][i] != first.Channels[ch][i] {
				t.Fatal("stale frame does not carry previous samples")
			}
		}
	}

	// Next read recovers
	next, err := m.AcquireFrame(context.Background())
	if err != nil {
		t.Fatalf("AcquireFrame: %v", err)
	}
	if next.Stale {
		t.Error("recovered frame still marked stale")
	}
}

func TestMockSource_GeometricDelays(t *testing.T) {
	m := NewMockSource(2048, 44100)
	// Source directly ahead: front mics lead rear mics, left/right equal
	m.SetTone(300, 0.8, 0)

	frame, err := m.AcquireFrame(context.Background())
	if err != nil {
		t.Fatalf("AcquireFrame: %v", err)
	}

	// Front-left and front-right see the identical waveform
	for i := range frame.Channels[FrontLeft] {
		if math.Abs(frame.Channels[FrontLeft][i]-frame.Channels[FrontRight][i]) > 1e-9 {
			t.Fatal("expected symmetric front channels for azimuth 0")
		}
	}

	// Rear channels differ from front by the propagation delay
	diff := 0.0
	for i := range frame.Channels[FrontLeft] {
		diff += math.Abs(frame.Channels[FrontLeft][i] - frame.Channels[RearLeft][i])
	}
	if diff == 0 {
		t.Error("expected rear channels delayed relative to front")
	}
}

func TestMockSource_Closed(t *testing.T) {
	m := NewMockSource(256, 44100)
	_ = m.Close()

	if m.Healthy() {
		t.Error("closed source reports healthy")
	}
	if _, err := m.AcquireFrame(context.Background()); err != ErrSourceClosed {
		t.Errorf("expected ErrSourceClosed, got %v", err)
	}
}

func TestSlideWindow_Deinterleaves(t *testing.T) {
	var window [NumChannels][]float64
	for ch := range window {
		window[ch] = make([]float64, 2)
	}
	interleaved := []float32{
		// tick 0: FL FR RR RL
		0.1, 0.2, 0.3, 0.4,
		// tick 1
		0.5, 0.6, 0.7, 0.8,
	}

	slideWindow(&window, interleaved, 2)

	want := [NumChannels][]float64{
		FrontLeft:  {0.1, 0.5},
		FrontRight: {0.2, 0.6},
		RearRight:  {0.3, 0.7},
		RearLeft:   {0.4, 0.8},
	}

	for ch := range want {
		for i := range want[ch] {
			if math.Abs(window[ch][i]-want[ch][i]) > 1e-6 {
				t.Errorf("channel %d sample %d = %f, want %f",
					ch, i, window[ch][i], want[ch][i])
			}
		}
	}
}

func TestSlideWindow_OverlapRetained(t *testing.T) {
	// Window of 4 advanced by hops of 1: each slide keeps the last three
	// samples and appends one fresh sample per channel.
	var window [NumChannels][]float64
	for ch := range window {
		window[ch] = make([]float64, 4)
	}

	for tick := 1; tick <= 6; tick++ {
		hop := make([]float32, NumChannels)
		for ch := 0; ch < NumChannels; ch++ {
			hop[ch] = float32(tick*10 + ch)
		}
		slideWindow(&window, hop, 1)
	}

	for ch := 0; ch < NumChannels; ch++ {
		want := []float64{
			float64(30 + ch),
			float64(40 + ch),
			float64(50 + ch),
			float64(60 + ch),
		}
		for i := range want {
			if math.Abs(window[ch][i]-want[i]) > 1e-9 {
				t.Errorf("channel %d sample %d = %f, want %f",
					ch, i, window[ch][i], want[i])
			}
		}
	}
}

func TestBytesToFloat32(t *testing.T) {
	in := []float32{0.5, -0.25, 1.0}
	raw := make([]byte, 0, len(in)*4)
	for _, v := range in {
		bits := math.Float32bits(v)
		raw = append(raw, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}

	out := bytesToFloat32(raw)
	if len(out) != len(in) {
		t.Fatalf("length %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %f, want %f", i, out[i], in[i])
		}
	}
}
