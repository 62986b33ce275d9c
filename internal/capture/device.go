package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

var (
	// ErrSourceClosed indicates the source has been closed
	ErrSourceClosed = errors.New("capture source closed")
)

// DeviceConfig configures the hardware capture source
type DeviceConfig struct {
	SampleRate int    // e.g. 44100
	FrameSize  int    // samples per channel per frame (= fftSize)
	HopSize    int    // new samples per channel per AcquireFrame; 0 means FrameSize
	DeviceName string // "" selects the default capture device
}

// DeviceSource captures interleaved 4-channel audio via miniaudio and
// reassembles it into per-position frames. It keeps a FrameSize analysis
// window per channel and advances it by HopSize samples on each
// AcquireFrame, so consecutive frames overlap by FrameSize-HopSize.
type DeviceSource struct {
	cfg    DeviceConfig
	logger *slog.Logger

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu     sync.Mutex
	closed bool

	// Interleaved sample chunks from the audio thread
	chunks chan []float32

	// Assembly state between AcquireFrame calls
	pending []float32

	// Sliding per-channel analysis window of FrameSize samples
	window [NumChannels][]float64

	// Last good frame, reused (marked stale) on read failure
	last *Frame

	healthy bool
}

// NewDeviceSource opens the capture device and starts streaming
func NewDeviceSource(cfg DeviceConfig, logger *slog.Logger) (*DeviceSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	s := &DeviceSource{
		cfg:     cfg,
		logger:  logger,
		ctx:     mctx,
		chunks:  make(chan []float32, 64),
		healthy: true,
	}
	for ch := range s.window {
		s.window[ch] = make([]float64, cfg.FrameSize)
	}

	deviceConfig := malgo.DeviceConfig{
		DeviceType:         malgo.Capture,
		SampleRate:         uint32(cfg.SampleRate),
		PeriodSizeInFrames: uint32(s.stride()),
		Capture: malgo.SubConfig{
			Format:   malgo.FormatF32,
			Channels: NumChannels,
		},
	}

	onRecvFrames := func(outputSamples, inputSamples []byte, frameCount uint32) {
		if len(inputSamples) == 0 {
			return
		}

		samples := bytesToFloat32(inputSamples)

		// Non-blocking send so the audio thread never stalls
		select {
		case s.chunks <- samples:
		default:
			// Consumer too slow, drop the chunk
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		_ = mctx.Uninit()
		return nil, fmt.Errorf("init capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		return nil, fmt.Errorf("start capture device: %w", err)
	}

	s.device = device

	logger.Info("capture device started",
		"sample_rate", cfg.SampleRate,
		"frame_size", cfg.FrameSize,
		"hop_size", s.stride(),
		"channels", NumChannels,
	)

	return s, nil
}

// AcquireFrame blocks until HopSize fresh samples per channel are
// buffered, then returns the advanced FrameSize analysis window. On
// failure it returns the previous frame marked stale so the feature
// pipeline keeps a contiguous spectrogram window.
func (s *DeviceSource) AcquireFrame(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSourceClosed
	}
	s.mu.Unlock()

	hop := s.stride()
	needed := hop * NumChannels

	for len(s.pending) < needed {
		select {
		case <-ctx.Done():
			return s.staleFrame(), ctx.Err()
		case chunk, ok := <-s.chunks:
			if !ok {
				return s.staleFrame(), ErrSourceClosed
			}
			s.pending = append(s.pending, chunk...)
		case <-time.After(2 * s.hopBudget()):
			// Device stopped delivering, hand back stale data
			s.setHealthy(false)
			return s.staleFrame(), nil
		}
	}

	slideWindow(&s.window, s.pending[:needed], hop)

	// Slide the assembly buffer
	copy(s.pending, s.pending[needed:])
	s.pending = s.pending[:len(s.pending)-needed]

	frame := NewFrame(s.cfg.FrameSize, s.cfg.SampleRate)
	for ch := range frame.Channels {
		copy(frame.Channels[ch], s.window[ch])
	}

	s.setHealthy(true)
	s.last = frame
	return frame, nil
}

// stride is the per-call advance of the analysis window
func (s *DeviceSource) stride() int {
	if s.cfg.HopSize > 0 && s.cfg.HopSize < s.cfg.FrameSize {
		return s.cfg.HopSize
	}
	return s.cfg.FrameSize
}

// staleFrame returns the last good frame marked stale, or a zero frame
// when nothing has been captured yet.
func (s *DeviceSource) staleFrame() *Frame {
	if s.last == nil {
		f := NewFrame(s.cfg.FrameSize, s.cfg.SampleRate)
		f.Stale = true
		return f
	}
	f := s.last.Clone()
	f.Stale = true
	f.Timestamp = time.Now()
	return f
}

func (s *DeviceSource) hopBudget() time.Duration {
	return time.Duration(float64(s.stride()) / float64(s.cfg.SampleRate) * float64(time.Second))
}

func (s *DeviceSource) setHealthy(ok bool) {
	s.mu.Lock()
	s.healthy = ok
	s.mu.Unlock()
}

// Healthy returns true if the device is delivering samples
func (s *DeviceSource) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy && !s.closed
}

// Name returns the source type name
func (s *DeviceSource) Name() string {
	return "device"
}

// Close stops the device and releases the audio context
func (s *DeviceSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
	}
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
	}
	return nil
}

// slideWindow shifts each channel left by hop samples and deinterleaves
// the fresh FL,FR,RR,RL samples into the tail
func slideWindow(window *[NumChannels][]float64, interleaved []float32, hop int) {
	size := len(window[0])
	for ch := 0; ch < NumChannels; ch++ {
		copy(window[ch], window[ch][hop:])
	}
	for i := 0; i < hop; i++ {
		base := i * NumChannels
		for ch := 0; ch < NumChannels; ch++ {
			window[ch][size-hop+i] = float64(interleaved[base+ch])
		}
	}
}

// bytesToFloat32 converts raw little-endian bytes to float32 samples
func bytesToFloat32(data []byte) []float32 {
	numSamples := len(data) / 4
	samples := make([]float32, numSamples)

	for i := 0; i < numSamples; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
