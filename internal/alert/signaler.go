// Package alert drives the buzzer and vibration motor with timed
// pulse patterns
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Outputs are the two boolean actuators the signaler drives
type Outputs interface {
	SetBuzzer(on bool) error
	SetVibration(on bool) error
}

// Pulse timing per alert kind
const (
	alertOnTime  = 100 * time.Millisecond
	alertOffTime = 50 * time.Millisecond

	hapticOnTime  = 150 * time.Millisecond
	hapticOffTime = 100 * time.Millisecond
)

// Signaler generates pulse patterns on the alert outputs. It holds no
// detection logic; Trigger schedules a pattern and Update advances it.
// Update runs on a fast loop independent of the detection tick, giving
// pulse edges finer timing than the hop interval.
type Signaler struct {
	outputs Outputs
	logger  *slog.Logger

	mu          sync.Mutex
	active      bool
	hapticOnly  bool
	startedAt   time.Time
	duration    time.Duration
	pulseState  bool
	lastPulseAt time.Time
	onTime      time.Duration
	offTime     time.Duration

	triggerCount uint64
}

// NewSignaler creates an alert signaler
func NewSignaler(outputs Outputs, logger *slog.Logger) *Signaler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Signaler{
		outputs: outputs,
		logger:  logger,
	}
}

// Trigger starts a pulsing alert for the given duration. With
// hapticOnly the buzzer stays silent and only the vibration motor
// pulses.
func (s *Signaler) Trigger(duration time.Duration, hapticOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.active = true
	s.hapticOnly = hapticOnly
	s.startedAt = now
	s.duration = duration
	s.pulseState = true
	s.lastPulseAt = now
	s.triggerCount++

	if hapticOnly {
		s.onTime, s.offTime = hapticOnTime, hapticOffTime
	} else {
		s.onTime, s.offTime = alertOnTime, alertOffTime
		_ = s.outputs.SetBuzzer(true)
	}
	_ = s.outputs.SetVibration(true)

	s.logger.Info("alert triggered",
		"duration", duration,
		"haptic_only", hapticOnly,
	)
}

// Stop silences both actuators immediately
func (s *Signaler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Signaler) stopLocked() {
	s.active = false
	_ = s.outputs.SetBuzzer(false)
	_ = s.outputs.SetVibration(false)
}

// Active reports whether an alert is playing
func (s *Signaler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// TriggerCount returns how many alerts have been started
func (s *Signaler) TriggerCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggerCount
}

// Update advances the pulse pattern. Call it on every loop iteration.
func (s *Signaler) Update(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}

	if s.duration > 0 && now.Sub(s.startedAt) >= s.duration {
		s.stopLocked()
		return
	}

	interval := s.offTime
	if s.pulseState {
		interval = s.onTime
	}

	if now.Sub(s.lastPulseAt) >= interval {
		s.pulseState = !s.pulseState
		s.lastPulseAt = now

		if s.pulseState {
			if !s.hapticOnly {
				_ = s.outputs.SetBuzzer(true)
			}
			_ = s.outputs.SetVibration(true)
		} else {
			_ = s.outputs.SetBuzzer(false)
			_ = s.outputs.SetVibration(false)
		}
	}
}

// Run evaluates the pulse pattern at 10 ms granularity until the
// context is cancelled (blocking, use goroutine)
func (s *Signaler) Run(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case now := <-ticker.C:
			s.Update(now)
		}
	}
}
