package alert

import (
	"context"
	"time"
)

// Step is one segment of a fixed pattern
type Step struct {
	Buzzer   bool
	Haptic   bool
	Duration time.Duration
}

// Pattern is a short, named actuator sequence played outside of the
// pulsing alert path (startup chirp, battery warning, calibration done)
type Pattern []Step

var (
	// StartupPattern plays once when the device comes up
	StartupPattern = Pattern{
		{Buzzer: true, Haptic: false, Duration: 80 * time.Millisecond},
		{Buzzer: false, Haptic: false, Duration: 60 * time.Millisecond},
		{Buzzer: true, Haptic: true, Duration: 120 * time.Millisecond},
	}

	// LowBatteryPattern warns with two long haptic buzzes
	LowBatteryPattern = Pattern{
		{Buzzer: false, Haptic: true, Duration: 300 * time.Millisecond},
		{Buzzer: false, Haptic: false, Duration: 200 * time.Millisecond},
		{Buzzer: false, Haptic: true, Duration: 300 * time.Millisecond},
	}

	// CalibrationDonePattern confirms a completed noise floor capture
	CalibrationDonePattern = Pattern{
		{Buzzer: true, Haptic: false, Duration: 60 * time.Millisecond},
		{Buzzer: false, Haptic: false, Duration: 40 * time.Millisecond},
		{Buzzer: true, Haptic: false, Duration: 60 * time.Millisecond},
		{Buzzer: false, Haptic: false, Duration: 40 * time.Millisecond},
		{Buzzer: true, Haptic: true, Duration: 100 * time.Millisecond},
	}
)

// Play runs a fixed pattern to completion, blocking between steps.
// Cancelling the context silences the outputs and returns early. Play
// must not be called while a pulsing alert is active; callers serialize
// that in the detection loop.
func (s *Signaler) Play(ctx context.Context, p Pattern) error {
	defer func() {
		_ = s.outputs.SetBuzzer(false)
		_ = s.outputs.SetVibration(false)
	}()

	for _, step := range p {
		_ = s.outputs.SetBuzzer(step.Buzzer)
		_ = s.outputs.SetVibration(step.Haptic)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step.Duration):
		}
	}

	return nil
}
