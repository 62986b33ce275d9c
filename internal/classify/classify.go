// Package classify submits spectrogram windows to the acoustic
// classifier and returns drone-presence confidence scores
package classify

import "context"

// Classifier scores a chronologically-ordered window of mel frames.
// Confidence is in [0, 1]; callers treat any error as confidence 0.
type Classifier interface {
	Infer(ctx context.Context, window [][]float64) (float64, error)
	Name() string
}

// dB range assumed by the model input normalization
const (
	normFloorDB = -80.0
	normRangeDB = 80.0
)

// NormalizeWindow maps dB mel energies into [0, 1] over the assumed
// [-80, 0] dB range, the layout the model was trained on
func NormalizeWindow(window [][]float64) [][]float64 {
	out := make([][]float64, len(window))
	for t, frame := range window {
		row := make([]float64, len(frame))
		for f, v := range frame {
			n := (v - normFloorDB) / normRangeDB
			if n < 0 {
				n = 0
			}
			if n > 1 {
				n = 1
			}
			row[f] = n
		}
		out[t] = row
	}
	return out
}
