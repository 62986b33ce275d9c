package capture

import (
	"context"
	"math"
	"sync"
	"time"
)

// MockSource is a synthetic capture source for development and tests.
// It emits a sinusoid arriving from a configurable azimuth, delayed
// per channel according to the square-array geometry, or silence when
// no tone is set.
type MockSource struct {
	mu sync.Mutex

	frameSize  int
	sampleRate int

	toneHz     float64
	amplitude  float64
	azimuthDeg float64
	sweep      bool // slowly rotate the source around the array

	micSpacingM  float64
	speedOfSound float64

	phase     float64
	failNext  bool
	lastFrame *Frame
	closed    bool
	startTime time.Time
}

// NewMockSource creates a silent synthetic source
func NewMockSource(frameSize, sampleRate int) *MockSource {
	return &MockSource{
		frameSize:    frameSize,
		sampleRate:   sampleRate,
		micSpacingM:  0.05,
		speedOfSound: 343.0,
		startTime:    time.Now(),
	}
}

// NewMockSourceWithSweep creates a synthetic source emitting a 300 Hz
// tone that orbits the array, for exercising the full pipeline without
// hardware.
func NewMockSourceWithSweep(frameSize, sampleRate int) *MockSource {
	m := NewMockSource(frameSize, sampleRate)
	m.toneHz = 300
	m.amplitude = 0.5
	m.sweep = true
	return m
}

// SetTone configures the emitted sinusoid
func (m *MockSource) SetTone(freqHz, amplitude, azimuthDeg float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toneHz = freqHz
	m.amplitude = amplitude
	m.azimuthDeg = azimuthDeg
}

// FailNext makes the next AcquireFrame return a stale frame
func (m *MockSource) FailNext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
}

// micPositions returns x (right) and y (forward) offsets per channel
func (m *MockSource) micPositions() [NumChannels][2]float64 {
	h := m.micSpacingM / 2
	return [NumChannels][2]float64{
		FrontLeft:  {-h, h},
		FrontRight: {h, h},
		RearRight:  {h, -h},
		RearLeft:   {-h, -h},
	}
}

// AcquireFrame synthesizes one frame
func (m *MockSource) AcquireFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSourceClosed
	}

	if m.failNext {
		m.failNext = false
		if m.lastFrame != nil {
			f := m.lastFrame.Clone()
			f.Stale = true
			f.Timestamp = time.Now()
			return f, nil
		}
		f := NewFrame(m.frameSize, m.sampleRate)
		f.Stale = true
		return f, nil
	}

	azimuth := m.azimuthDeg
	if m.sweep {
		// One revolution every 60 seconds
		azimuth = math.Mod(time.Since(m.startTime).Seconds()*6, 360)
	}

	frame := NewFrame(m.frameSize, m.sampleRate)

	if m.toneHz > 0 {
		rad := azimuth * math.Pi / 180
		// Unit vector pointing toward the source
		ux, uy := math.Sin(rad), math.Cos(rad)

		positions := m.micPositions()
		for ch := range frame.Channels {
			// Mics closer to the source receive the wavefront earlier
			delay := -(positions[ch][0]*ux + positions[ch][1]*uy) / m.speedOfSound
			for i := range frame.Channels[ch] {
				t := m.phase + float64(i)/float64(m.sampleRate) - delay
				frame.Channels[ch][i] = m.amplitude * math.Sin(2*math.Pi*m.toneHz*t)
			}
		}
	}

	m.phase += float64(m.frameSize) / float64(m.sampleRate)
	m.lastFrame = frame
	return frame, nil
}

// Healthy always reports true for the synthetic source
func (m *MockSource) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Name returns the source type name
func (m *MockSource) Name() string {
	return "mock"
}

// Close marks the source closed
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
