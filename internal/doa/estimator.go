package doa

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Config configures the direction estimator
type Config struct {
	MicSpacingM    float64 // adjacent microphone spacing in meters
	SpeedOfSound   float64 // m/s
	SampleRate     int
	MinCorrelation float64 // mean pair confidence below this suppresses updates
	Smoothing      float64 // EMA alpha for the azimuth
}

// DefaultConfig returns the array defaults
func DefaultConfig() Config {
	return Config{
		MicSpacingM:    0.05,
		SpeedOfSound:   343.0,
		SampleRate:     44100,
		MinCorrelation: 0.5,
		Smoothing:      0.3,
	}
}

// TDOAResult is the time difference of arrival for one microphone pair
type TDOAResult struct {
	// LagSamples is positive when the second signal lags the first
	LagSamples int
	// Confidence is the peak normalized correlation, roughly [-1, 1]
	Confidence float64
}

// State is the smoothed direction estimate, persisted across ticks
type State struct {
	AzimuthDeg float64 `json:"azimuth_deg"` // [0, 360), 0 = forward
	Confidence float64 `json:"confidence"`  // mean pair correlation of the last estimate
}

// Estimator derives a smoothed azimuth from four-channel frames.
// Not safe for concurrent use; the detection loop is its only caller.
type Estimator struct {
	cfg             Config
	maxDelaySamples float64
	state           State
}

// NewEstimator creates a direction estimator for the array geometry
func NewEstimator(cfg Config) *Estimator {
	// Diagonal pair worst case
	maxDistanceM := math.Sqrt2 * cfg.MicSpacingM
	maxDelayS := maxDistanceM / cfg.SpeedOfSound

	return &Estimator{
		cfg:             cfg,
		maxDelaySamples: maxDelayS * float64(cfg.SampleRate),
	}
}

// MaxDelaySamples returns the worst-case inter-microphone delay
func (e *Estimator) MaxDelaySamples() float64 {
	return e.maxDelaySamples
}

// State returns the current smoothed estimate
func (e *Estimator) State() State {
	return e.state
}

// CrossCorrelate finds the lag maximizing the normalized correlation
// between two signals. The search range is bounded by the array
// geometry plus a small margin, and by a quarter of the frame.
func (e *Estimator) CrossCorrelate(sigA, sigB []float64) TDOAResult {
	n := len(sigA)
	if len(sigB) < n {
		n = len(sigB)
	}

	maxLag := int(math.Ceil(e.maxDelaySamples)) + 5
	if maxLag > n/4 {
		maxLag = n / 4
	}
	if maxLag < 1 {
		return TDOAResult{}
	}

	bestCorr := math.Inf(-1)
	bestLag := 0

	// Overlap region trimmed by maxLag on both ends keeps every
	// shifted index in range
	lo, hi := maxLag, n-maxLag
	for lag := -maxLag; lag <= maxLag; lag++ {
		a := sigA[lo:hi]
		b := sigB[lo+lag : hi+lag]

		corr := floats.Dot(a, b)
		norm := math.Sqrt(floats.Dot(a, a) * floats.Dot(b, b))
		if norm > 1e-10 {
			corr /= norm
		} else {
			corr = 0
		}

		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	return TDOAResult{LagSamples: bestLag, Confidence: bestCorr}
}

// Estimate updates the smoothed azimuth from one frame of the four
// array channels (front-left, front-right, rear-right, rear-left).
// Low mean correlation suppresses the update rather than propagating
// an unreliable bearing.
func (e *Estimator) Estimate(frontLeft, frontRight, rearRight, rearLeft []float64) State {
	pairFLFR := e.CrossCorrelate(frontLeft, frontRight)
	pairFLRL := e.CrossCorrelate(frontLeft, rearLeft)
	pairRRFR := e.CrossCorrelate(rearRight, frontRight)
	pairRRRL := e.CrossCorrelate(rearRight, rearLeft)

	confidence := (pairFLFR.Confidence + pairFLRL.Confidence +
		pairRRFR.Confidence + pairRRRL.Confidence) / 4.0

	e.state.Confidence = confidence

	if confidence < e.cfg.MinCorrelation {
		return e.state
	}

	raw := e.azimuthFromLags(pairFLFR.LagSamples, pairFLRL.LagSamples,
		pairRRFR.LagSamples, pairRRRL.LagSamples)

	// Shortest-path EMA, never crossing the long way around
	diff := WrapDiffDeg(raw - e.state.AzimuthDeg)
	e.state.AzimuthDeg = NormalizeDeg(e.state.AzimuthDeg + e.cfg.Smoothing*diff)

	return e.state
}

// azimuthFromLags converts the four pair lags to a raw azimuth in
// [0, 360). X averages the horizontal pairs, Y the vertical ones.
func (e *Estimator) azimuthFromLags(lagFLFR, lagFLRL, lagRRFR, lagRRRL int) float64 {
	rate := float64(e.cfg.SampleRate)
	dtX := (float64(lagFLFR)/rate + float64(lagRRRL)/rate) / 2.0
	dtY := (float64(lagFLRL)/rate + float64(lagRRFR)/rate) / 2.0

	sinX := Clamp(e.cfg.SpeedOfSound*dtX/e.cfg.MicSpacingM, -1, 1)
	sinY := Clamp(e.cfg.SpeedOfSound*dtY/e.cfg.MicSpacingM, -1, 1)

	// All pair delays zero means directly ahead by convention
	if sinX == 0 && sinY == 0 {
		return 0
	}

	return NormalizeDeg(math.Atan2(sinX, -sinY) * 180.0 / math.Pi)
}
