package detect

import "time"

// beginCalibration enters CALIBRATE and opens a fresh accumulator.
// Caller holds e.mu.
func (e *Engine) beginCalibration(now time.Time) {
	if !e.transition(ModeCalibrate, now) {
		return
	}

	e.detectionCount = 0
	e.calibStart = now
	e.spectral.BeginCalibration()
	e.logger.Info("noise floor calibration started",
		"period", e.cfg.Detection.CalibrationPeriod,
	)
}

// stepCalibration folds one frame into the running noise floor mean
// and commits the profile once the calibration period elapses. Caller
// holds e.mu.
func (e *Engine) stepCalibration(mix []float64, now time.Time) {
	e.spectral.AccumulateCalibrationFrame(mix)

	if now.Sub(e.calibStart) < e.cfg.Detection.CalibrationPeriod {
		return
	}

	e.spectral.EndCalibration()
	e.calibrated = true
	e.calibStart = time.Time{}
	e.logger.Info("noise floor calibration complete")
	e.transition(ModeScan, now)
	e.emit(Event{
		Kind:      EventCalibrated,
		Mode:      e.mode.String(),
		Timestamp: now,
	})
}

// abortCalibration discards the in-progress accumulator without
// touching the active profile. Caller holds e.mu.
func (e *Engine) abortCalibration() {
	e.spectral.AbortCalibration()
	e.calibStart = time.Time{}
}

// calibrationProgressLocked reports progress in [0,1]; zero when no
// calibration is running. Caller holds e.mu.
func (e *Engine) calibrationProgressLocked(now time.Time) float64 {
	if e.mode != ModeCalibrate || e.calibStart.IsZero() {
		return 0
	}

	p := float64(now.Sub(e.calibStart)) / float64(e.cfg.Detection.CalibrationPeriod)
	if p > 1 {
		p = 1
	}
	return p
}
