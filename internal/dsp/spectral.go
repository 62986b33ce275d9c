// Package dsp provides the spectral feature pipeline: windowing, FFT
// magnitude spectra, mel filterbank integration, and noise-floor calibration.
package dsp

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

var (
	// ErrInvalidFFTSize indicates the FFT size is not a power of two
	ErrInvalidFFTSize = errors.New("fft size must be a power of two")
	// ErrInvalidMelBins indicates the mel bin count is not positive
	ErrInvalidMelBins = errors.New("mel bin count must be positive")
)

// melEnergyFloor keeps the log argument finite on silent input
const melEnergyFloor = 1e-10

// Engine computes mel-scale feature frames from audio samples.
// It owns the Hann window, the mel filterbank, and the noise-floor
// profile. Not safe for concurrent use; the detection loop is its
// only caller.
type Engine struct {
	sampleRate int
	fftSize    int
	melBins    int

	window     []float64
	filterbank *Filterbank

	// Noise floor in dB per band. All-zero means uncalibrated and
	// disables subtraction.
	noiseFloor []float64

	// Calibration accumulator, live between BeginCalibration and
	// EndCalibration.
	calibrating bool
	calibMean   []float64
	calibCount  int

	scratch []float64
}

// NewEngine creates a feature engine for the given transform geometry.
func NewEngine(sampleRate, fftSize, melBins int) (*Engine, error) {
	if fftSize <= 0 || fftSize&(fftSize-1) != 0 {
		return nil, ErrInvalidFFTSize
	}
	if melBins <= 0 {
		return nil, ErrInvalidMelBins
	}

	return &Engine{
		sampleRate: sampleRate,
		fftSize:    fftSize,
		melBins:    melBins,
		window:     HannWindow(fftSize),
		filterbank: NewFilterbank(sampleRate, fftSize, melBins),
		noiseFloor: make([]float64, melBins),
		scratch:    make([]float64, fftSize),
	}, nil
}

// MelBins returns the number of mel bands per frame
func (e *Engine) MelBins() int {
	return e.melBins
}

// FFTSize returns the transform length
func (e *Engine) FFTSize() int {
	return e.fftSize
}

// magnitudeSpectrum windows the first fftSize samples (zero-padding a
// short frame) and returns fftSize/2+1 non-negative magnitudes.
func (e *Engine) magnitudeSpectrum(samples []float64) []float64 {
	for i := 0; i < e.fftSize; i++ {
		if i < len(samples) {
			e.scratch[i] = samples[i] * e.window[i]
		} else {
			e.scratch[i] = 0
		}
	}

	spectrum := fft.FFTReal(e.scratch)

	numBins := e.fftSize/2 + 1
	magnitude := make([]float64, numBins)
	for k := 0; k < numBins; k++ {
		magnitude[k] = cmplx.Abs(spectrum[k])
	}
	return magnitude
}

// melEnergies integrates the magnitude spectrum into dB band energies
// without noise-floor subtraction.
func (e *Engine) melEnergies(samples []float64) []float64 {
	energies := e.filterbank.Apply(e.magnitudeSpectrum(samples))
	for m, sum := range energies {
		if sum < melEnergyFloor {
			sum = melEnergyFloor
		}
		energies[m] = 20.0 * math.Log10(sum)
	}
	return energies
}

// ComputeMelFrame produces one mel frame: windowed FFT magnitude,
// filterbank integration, dB conversion, and noise-floor subtraction
// for calibrated bands (clamped at 0 dB).
func (e *Engine) ComputeMelFrame(samples []float64) []float64 {
	frame := e.melEnergies(samples)
	for m := range frame {
		if e.noiseFloor[m] != 0 {
			frame[m] -= e.noiseFloor[m]
			if frame[m] < 0 {
				frame[m] = 0
			}
		}
	}
	return frame
}

// BeginCalibration starts a new calibration session, discarding any
// in-progress accumulator. The active noise floor stays in effect
// until EndCalibration commits the replacement.
func (e *Engine) BeginCalibration() {
	e.calibrating = true
	e.calibMean = make([]float64, e.melBins)
	e.calibCount = 0
}

// AccumulateCalibrationFrame folds one frame's pre-subtraction mel
// energies into the running mean.
func (e *Engine) AccumulateCalibrationFrame(samples []float64) {
	if !e.calibrating {
		return
	}

	energies := e.melEnergies(samples)
	n := float64(e.calibCount)
	for m, v := range energies {
		e.calibMean[m] = (e.calibMean[m]*n + v) / (n + 1)
	}
	e.calibCount++
}

// EndCalibration commits the accumulated means as the new noise floor,
// replacing any prior profile wholesale.
func (e *Engine) EndCalibration() {
	if !e.calibrating {
		return
	}

	e.noiseFloor = e.calibMean
	e.calibrating = false
	e.calibMean = nil
	e.calibCount = 0
}

// AbortCalibration discards the in-progress accumulator, leaving the
// active noise floor untouched.
func (e *Engine) AbortCalibration() {
	e.calibrating = false
	e.calibMean = nil
	e.calibCount = 0
}

// Calibrating reports whether a calibration session is in progress
func (e *Engine) Calibrating() bool {
	return e.calibrating
}

// NoiseFloor returns a copy of the current per-band noise floor in dB
func (e *Engine) NoiseFloor() []float64 {
	out := make([]float64, len(e.noiseFloor))
	copy(out, e.noiseFloor)
	return out
}

// RMS returns the root-mean-square level of the samples
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// PeakFrequency returns the frequency of the strongest magnitude bin,
// excluding DC.
func (e *Engine) PeakFrequency(samples []float64) float64 {
	magnitude := e.magnitudeSpectrum(samples)

	maxMag := 0.0
	maxIndex := 0
	for k := 1; k < e.fftSize/2; k++ {
		if magnitude[k] > maxMag {
			maxMag = magnitude[k]
			maxIndex = k
		}
	}

	return float64(maxIndex) * float64(e.sampleRate) / float64(e.fftSize)
}
