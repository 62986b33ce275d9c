package dsp

// Spectrogram is a fixed-capacity ring of mel frames. Insertion order
// defines recency; Window always reads oldest-first.
type Spectrogram struct {
	frames   [][]float64
	capacity int
	next     int
	count    int
}

// NewSpectrogram creates a history holding timeFrames mel frames
func NewSpectrogram(timeFrames int) *Spectrogram {
	return &Spectrogram{
		frames:   make([][]float64, timeFrames),
		capacity: timeFrames,
	}
}

// Push appends a frame, evicting the oldest once at capacity.
// The frame is copied; callers may reuse their slice.
func (s *Spectrogram) Push(frame []float64) {
	stored := make([]float64, len(frame))
	copy(stored, frame)

	s.frames[s.next] = stored
	s.next = (s.next + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}
}

// Len returns the number of frames currently held
func (s *Spectrogram) Len() int {
	return s.count
}

// Full reports whether the history holds a complete classifier window
func (s *Spectrogram) Full() bool {
	return s.count == s.capacity
}

// Window returns the held frames in chronological order, oldest first
func (s *Spectrogram) Window() [][]float64 {
	out := make([][]float64, 0, s.count)

	start := s.next - s.count
	if start < 0 {
		start += s.capacity
	}
	for i := 0; i < s.count; i++ {
		out = append(out, s.frames[(start+i)%s.capacity])
	}
	return out
}
