// Package capture acquires multi-channel audio frames from the
// microphone array
package capture

import "time"

// Array positions, in channel order
const (
	FrontLeft = iota
	FrontRight
	RearRight
	RearLeft

	NumChannels = 4
)

// Frame is one processing tick of samples from the four array
// positions. All channels share length and sample rate. Samples are
// normalized float64 in [-1, 1].
type Frame struct {
	Channels   [NumChannels][]float64
	SampleRate int
	Timestamp  time.Time

	// Stale marks a frame whose samples were carried over from the
	// previous read after a capture failure. Consumers should skip
	// detection logic for stale frames.
	Stale bool
}

// NewFrame allocates a frame with the given per-channel length
func NewFrame(samplesPerChannel, sampleRate int) *Frame {
	f := &Frame{SampleRate: sampleRate, Timestamp: time.Now()}
	for ch := range f.Channels {
		f.Channels[ch] = make([]float64, samplesPerChannel)
	}
	return f
}

// Len returns the per-channel sample count
func (f *Frame) Len() int {
	return len(f.Channels[0])
}

// Clone returns a deep copy of the frame
func (f *Frame) Clone() *Frame {
	out := &Frame{SampleRate: f.SampleRate, Timestamp: f.Timestamp, Stale: f.Stale}
	for ch := range f.Channels {
		out.Channels[ch] = make([]float64, len(f.Channels[ch]))
		copy(out.Channels[ch], f.Channels[ch])
	}
	return out
}
