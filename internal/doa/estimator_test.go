package doa

import (
	"math"
	"math/rand"
	"testing"
)

func testConfig() Config {
	return Config{
		MicSpacingM:    0.05,
		SpeedOfSound:   343.0,
		SampleRate:     44100,
		MinCorrelation: 0.5,
		Smoothing:      0.3,
	}
}

func sine(freq, sampleRate float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}
	return out
}

// delayedCopy shifts the signal right by d samples, zero-filling the head
func delayedCopy(signal []float64, d int) []float64 {
	out := make([]float64, len(signal))
	copy(out[d:], signal)
	return out
}

func TestMaxDelaySamples(t *testing.T) {
	e := NewEstimator(testConfig())

	// sqrt(2) * 0.05 / 343 * 44100 ≈ 9.09
	want := math.Sqrt2 * 0.05 / 343.0 * 44100.0
	if math.Abs(e.MaxDelaySamples()-want) > 1e-9 {
		t.Errorf("MaxDelaySamples = %f, want %f", e.MaxDelaySamples(), want)
	}
}

func TestCrossCorrelate_Self(t *testing.T) {
	e := NewEstimator(testConfig())
	signal := sine(300, 44100, 2048)

	result := e.CrossCorrelate(signal, signal)

	if result.LagSamples != 0 {
		t.Errorf("self-correlation lag = %d, want 0", result.LagSamples)
	}
	if math.Abs(result.Confidence-1.0) > 1e-6 {
		t.Errorf("self-correlation confidence = %f, want 1", result.Confidence)
	}
}

func TestCrossCorrelate_DelayedCopy(t *testing.T) {
	e := NewEstimator(testConfig())
	signal := sine(300, 44100, 2048)

	const d = 3
	result := e.CrossCorrelate(signal, delayedCopy(signal, d))

	if result.LagSamples < d-1 || result.LagSamples > d+1 {
		t.Errorf("lag = %d, want %d ±1", result.LagSamples, d)
	}
	if result.Confidence < 0.95 {
		t.Errorf("confidence = %f, want > 0.95", result.Confidence)
	}
}

func TestCrossCorrelate_SilenceHasZeroConfidence(t *testing.T) {
	e := NewEstimator(testConfig())
	silence := make([]float64, 2048)

	result := e.CrossCorrelate(silence, silence)

	if result.Confidence != 0 {
		t.Errorf("confidence on silence = %f, want 0", result.Confidence)
	}
}

func TestEstimate_LowConfidenceSuppressed(t *testing.T) {
	e := NewEstimator(testConfig())
	e.state.AzimuthDeg = 123.4

	// Independent noise per channel correlates poorly
	rng := rand.New(rand.NewSource(1))
	noise := func() []float64 {
		out := make([]float64, 2048)
		for i := range out {
			out[i] = rng.Float64()*2 - 1
		}
		return out
	}

	state := e.Estimate(noise(), noise(), noise(), noise())

	if state.Confidence >= 0.5 {
		t.Fatalf("expected low mean correlation, got %f", state.Confidence)
	}
	if state.AzimuthDeg != 123.4 {
		t.Errorf("low-confidence estimate moved azimuth to %f", state.AzimuthDeg)
	}
}

func TestEstimate_IdenticalChannelsPointAhead(t *testing.T) {
	e := NewEstimator(testConfig())
	signal := sine(300, 44100, 2048)

	state := e.Estimate(signal, signal, signal, signal)

	if state.Confidence < 0.99 {
		t.Errorf("confidence = %f, want ~1", state.Confidence)
	}
	// All lags zero resolves to 0° by convention
	if state.AzimuthDeg != 0 {
		t.Errorf("azimuth = %f, want 0", state.AzimuthDeg)
	}
}

func TestEstimate_DelayedChannels(t *testing.T) {
	e := NewEstimator(testConfig())
	signal := sine(300, 44100, 2048)

	// FR, RL and the FR/RL counterparts delayed by 3 samples relative
	// to FL and RR: every pair lag resolves to +3
	delayed := delayedCopy(signal, 3)
	state := e.Estimate(signal, delayed, signal, delayed)

	if state.Confidence < 0.95 {
		t.Fatalf("confidence = %f, want > 0.95", state.Confidence)
	}

	// dt = 3/44100 s on both axes: sin = 343*dt/0.05 ≈ 0.467,
	// raw = atan2(0.467, -0.467) = 135°, smoothed from 0 by 0.3
	want := 0.3 * 135.0
	if math.Abs(state.AzimuthDeg-want) > 1.0 {
		t.Errorf("azimuth = %f, want ~%f", state.AzimuthDeg, want)
	}
}

func TestAzimuthFromLags_ZeroIsAhead(t *testing.T) {
	e := NewEstimator(testConfig())

	if got := e.azimuthFromLags(0, 0, 0, 0); got != 0 {
		t.Errorf("azimuth for zero lags = %f, want 0", got)
	}
}

func TestSmoothing_Wraparound(t *testing.T) {
	e := NewEstimator(testConfig())
	e.state.AzimuthDeg = 350

	// raw 10°: wrapped diff is +20, not -340
	diff := WrapDiffDeg(10 - e.state.AzimuthDeg)
	if diff != 20 {
		t.Fatalf("wrapped diff = %f, want 20", diff)
	}

	smoothed := NormalizeDeg(e.state.AzimuthDeg + e.cfg.Smoothing*diff)
	if math.Abs(smoothed-356) > 1e-9 {
		t.Errorf("smoothed = %f, want 356", smoothed)
	}
	if smoothed < 0 || smoothed >= 360 {
		t.Errorf("smoothed azimuth %f outside [0, 360)", smoothed)
	}
}

func TestNormalizeDeg(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{360, 0},
		{-10, 350},
		{725, 5},
		{359.9, 359.9},
	}

	for _, tt := range tests {
		if got := NormalizeDeg(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeDeg(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestWrapDiffDeg(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{20, 20},
		{-340, 20},
		{340, -20},
		{180, 180},
		{-180, 180},
	}

	for _, tt := range tests {
		if got := WrapDiffDeg(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("WrapDiffDeg(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}
