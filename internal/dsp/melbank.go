package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// HzToMel converts frequency in Hz to the mel scale
func HzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// MelToHz converts mel scale to frequency in Hz
func MelToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// Filterbank is an immutable bank of triangular mel-spaced filters.
// Each row weights the fftSize/2+1 magnitude bins of one mel band.
type Filterbank struct {
	rows [][]float64
}

// NewFilterbank builds a triangular mel filterbank covering 0..sampleRate/2.
// Band edges are melBins+2 points equally spaced in mel space, mapped back
// to FFT bin indices and clamped into range.
func NewFilterbank(sampleRate, fftSize, melBins int) *Filterbank {
	numFftBins := fftSize/2 + 1
	nyquist := float64(sampleRate) / 2.0

	melMin := HzToMel(0)
	melMax := HzToMel(nyquist)

	binPoints := make([]int, melBins+2)
	for i := range binPoints {
		mel := melMin + (melMax-melMin)*float64(i)/float64(melBins+1)
		hz := MelToHz(mel)
		bin := int(math.Round(hz / nyquist * float64(numFftBins)))
		if bin < 0 {
			bin = 0
		}
		if bin > numFftBins-1 {
			bin = numFftBins - 1
		}
		binPoints[i] = bin
	}

	rows := make([][]float64, melBins)
	for m := range rows {
		row := make([]float64, numFftBins)
		start := binPoints[m]
		center := binPoints[m+1]
		end := binPoints[m+2]

		// Rising slope; degenerate edges contribute nothing
		for k := start; k < center; k++ {
			row[k] = float64(k-start) / float64(center-start)
		}

		// Falling slope
		if end != center {
			for k := center; k <= end; k++ {
				row[k] = float64(end-k) / float64(end-center)
			}
		}

		rows[m] = row
	}

	return &Filterbank{rows: rows}
}

// Bins returns the number of mel bands
func (fb *Filterbank) Bins() int {
	return len(fb.rows)
}

// Row returns the filter weights of band m
func (fb *Filterbank) Row(m int) []float64 {
	return fb.rows[m]
}

// Apply integrates a magnitude spectrum into per-band energies
func (fb *Filterbank) Apply(magnitude []float64) []float64 {
	energies := make([]float64, len(fb.rows))
	for m, row := range fb.rows {
		energies[m] = floats.Dot(row, magnitude)
	}
	return energies
}
