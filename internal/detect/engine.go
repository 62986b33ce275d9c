// Package detect runs the detection decision loop: it pulls capture
// frames through the feature pipeline, asks the classifier for a
// confidence, tracks direction of arrival, and decides when to alert.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vartalabs/varta/internal/board"
	"github.com/vartalabs/varta/internal/capture"
	"github.com/vartalabs/varta/internal/classify"
	"github.com/vartalabs/varta/internal/config"
	"github.com/vartalabs/varta/internal/doa"
	"github.com/vartalabs/varta/internal/dsp"
)

const maxConsecutiveErrors = 10

// Alerter is the alert output the engine drives
type Alerter interface {
	Trigger(duration time.Duration, hapticOnly bool)
	Stop()
	Active() bool
}

// Stats are cumulative engine counters
type Stats struct {
	FramesProcessed uint64 `json:"frames_processed"`
	StaleFrames     uint64 `json:"stale_frames"`
	Detections      uint64 `json:"detections"`
	AlertsIssued    uint64 `json:"alerts_issued"`
	ClassifyErrors  uint64 `json:"classify_errors"`
	CaptureErrors   uint64 `json:"capture_errors"`
	ModeChanges     uint64 `json:"mode_changes"`
}

// Snapshot is a point-in-time view of the engine state
type Snapshot struct {
	Mode                string    `json:"mode"`
	Muted               bool      `json:"muted"`
	DetectionCount      int       `json:"detection_count"`
	Confidence          float64   `json:"confidence"`
	Direction           doa.State `json:"direction"`
	BatteryVoltage      float64   `json:"battery_voltage"`
	Calibrated          bool      `json:"calibrated"`
	CalibrationProgress float64   `json:"calibration_progress"`
	RMS                 float64   `json:"rms"`
	Timestamp           time.Time `json:"timestamp"`
}

// Engine is the detection decision state machine. One goroutine runs
// the tick loop; button events and snapshot reads come from others.
type Engine struct {
	cfg        *config.Config
	source     capture.Source
	spectral   *dsp.Engine
	history    *dsp.Spectrogram
	estimator  *doa.Estimator
	classifier classify.Classifier
	board      board.Board
	alerter    Alerter
	logger     *slog.Logger

	mu    sync.Mutex
	mode  Mode
	muted bool

	detectionCount  int
	lastDetectionAt time.Time
	lastAlertAt     time.Time
	lastConfidence  float64
	lastRMS         float64
	direction       doa.State

	batteryVoltage float64
	recoverySince  time.Time
	lowWarned      bool

	calibrated bool
	calibStart time.Time

	consecutiveErrors int

	stats Stats
	sinks []EventSink
}

// New wires a detection engine from its collaborators
func New(
	cfg *config.Config,
	source capture.Source,
	classifier classify.Classifier,
	brd board.Board,
	alerter Alerter,
	logger *slog.Logger,
) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	spectral, err := dsp.NewEngine(cfg.Audio.SampleRate, cfg.Audio.FFTSize, cfg.Audio.MelBins)
	if err != nil {
		return nil, fmt.Errorf("spectral engine: %w", err)
	}

	estimator := doa.NewEstimator(doa.Config{
		MicSpacingM:    cfg.Array.MicSpacingM(),
		SpeedOfSound:   cfg.Array.SpeedOfSound,
		SampleRate:     cfg.Audio.SampleRate,
		MinCorrelation: cfg.Array.MinCorrelation,
		Smoothing:      cfg.Array.Smoothing,
	})

	return &Engine{
		cfg:        cfg,
		source:     source,
		spectral:   spectral,
		history:    dsp.NewSpectrogram(cfg.Audio.SpecTimeFrames),
		estimator:  estimator,
		classifier: classifier,
		board:      brd,
		alerter:    alerter,
		logger:     logger,
		mode:       ModeInit,
	}, nil
}

// Subscribe registers an event sink. Call before Run; the sink list is
// not guarded afterwards.
func (e *Engine) Subscribe(sink EventSink) {
	e.sinks = append(e.sinks, sink)
}

func (e *Engine) emit(ev Event) {
	for _, sink := range e.sinks {
		sink(ev)
	}
}

// transition moves the engine to a new mode. Invalid transitions per
// the mode table are refused and logged. Caller holds e.mu.
func (e *Engine) transition(to Mode, now time.Time) bool {
	if e.mode == to {
		return true
	}
	if !canTransition(e.mode, to) {
		e.logger.Error("refused mode transition",
			"from", e.mode.String(),
			"to", to.String(),
		)
		return false
	}

	e.logger.Info("mode transition",
		"from", e.mode.String(),
		"to", to.String(),
	)
	e.mode = to
	e.stats.ModeChanges++
	e.emit(Event{
		Kind:      EventModeChange,
		Mode:      to.String(),
		Timestamp: now,
		Muted:     e.muted,
	})
	return true
}

// Run executes the tick loop until the context is cancelled
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.transition(ModeScan, time.Now())
	e.mu.Unlock()

	interval := e.cfg.Audio.HopInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("detection loop started",
		"hop_interval", interval,
		"sample_rate", e.cfg.Audio.SampleRate,
		"source", e.source.Name(),
	)

	for {
		select {
		case <-ctx.Done():
			e.alerter.Stop()
			return ctx.Err()
		case now := <-ticker.C:
			e.tick(ctx, now)
		}
	}
}

// tick runs one pipeline step: battery, capture, features, classify,
// direction, alert decision.
func (e *Engine) tick(ctx context.Context, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Battery is sampled every tick so a critical drop suspends
	// detection within one hop interval.
	e.checkBattery(now)

	if e.mode == ModeLowBattery || e.mode == ModeError {
		return
	}

	frame, err := e.source.AcquireFrame(ctx)
	if err != nil {
		e.stats.CaptureErrors++
		e.consecutiveErrors++
		e.logger.Warn("frame acquisition failed",
			"error", err,
			"consecutive", e.consecutiveErrors,
		)
		if e.consecutiveErrors >= maxConsecutiveErrors {
			e.alerter.Stop()
			e.transition(ModeError, now)
		}
		return
	}
	e.consecutiveErrors = 0
	e.stats.FramesProcessed++

	// Channel 0 (front-left) is the spectral reference; the remaining
	// channels only feed the direction estimator.
	ref := frame.Channels[capture.FrontLeft]
	e.lastRMS = dsp.RMS(ref)

	if e.mode == ModeCalibrate {
		e.stepCalibration(ref, now)
		return
	}

	melFrame := e.spectral.ComputeMelFrame(ref)
	e.history.Push(melFrame)

	// A stale frame keeps the spectrogram rolling but is not evidence:
	// skip classification and direction for this tick.
	if frame.Stale {
		e.stats.StaleFrames++
		return
	}

	if !e.history.Full() {
		return
	}

	confidence, err := e.classifier.Infer(ctx, e.history.Window())
	if err != nil {
		e.stats.ClassifyErrors++
		e.logger.Warn("classifier inference failed", "error", err)
		confidence = 0
	}
	e.lastConfidence = confidence

	if confidence >= e.cfg.Detection.ConfidenceThreshold {
		e.detectionCount++
		e.lastDetectionAt = now
		e.stats.Detections++

		e.direction = e.estimator.Estimate(
			frame.Channels[capture.FrontLeft],
			frame.Channels[capture.FrontRight],
			frame.Channels[capture.RearRight],
			frame.Channels[capture.RearLeft],
		)

		e.emit(Event{
			Kind:       EventDetection,
			Mode:       e.mode.String(),
			Timestamp:  now,
			Confidence: confidence,
			Direction:  e.direction,
			PeakFreqHz: e.spectral.PeakFrequency(ref),
		})
	} else if e.detectionCount > 0 && now.Sub(e.lastDetectionAt) > e.cfg.Detection.DetectionWindow {
		e.logger.Debug("detection window expired", "count", e.detectionCount)
		e.detectionCount = 0
		if e.mode == ModeAlert {
			e.transition(ModeScan, now)
		}
	}

	if e.mode != ModeScan && e.mode != ModeAlert {
		return
	}

	if e.detectionCount >= e.cfg.Detection.MinDetections {
		// Holdoff gates the mode change together with the pulse: a
		// re-confirmation inside the holdoff neither re-alerts nor
		// flips SCAN back to ALERT.
		if e.lastAlertAt.IsZero() || now.Sub(e.lastAlertAt) >= e.cfg.Alert.Holdoff {
			if e.mode == ModeScan {
				e.transition(ModeAlert, now)
			}
			e.lastAlertAt = now
			e.stats.AlertsIssued++
			e.alerter.Trigger(e.cfg.Alert.Duration, e.muted)
			e.emit(Event{
				Kind:       EventAlert,
				Mode:       e.mode.String(),
				Timestamp:  now,
				Confidence: e.lastConfidence,
				Direction:  e.direction,
				Muted:      e.muted,
			})
		}
	}
}

// HandleButton applies an operator button event
func (e *Engine) HandleButton(ev board.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	e.logger.Info("button event", "event", ev.String(), "mode", e.mode.String())

	switch ev {
	case board.EventShortPress:
		switch e.mode {
		case ModeScan, ModeAlert:
			e.alerter.Stop()
			e.detectionCount = 0
			e.transition(ModeMonitor, now)
		case ModeMonitor:
			e.transition(ModeScan, now)
		}

	case board.EventDoublePress:
		e.muted = !e.muted
		e.emit(Event{
			Kind:      EventMuteChange,
			Mode:      e.mode.String(),
			Timestamp: now,
			Muted:     e.muted,
		})

	case board.EventLongPress:
		switch e.mode {
		case ModeScan, ModeAlert, ModeMonitor:
			e.alerter.Stop()
			e.beginCalibration(now)
		}
	}
}

// Mode returns the current operating mode
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Muted reports whether alerts are haptic-only
func (e *Engine) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// Stats returns a copy of the cumulative counters
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Snapshot returns the current engine state for the API surface
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		Mode:                e.mode.String(),
		Muted:               e.muted,
		DetectionCount:      e.detectionCount,
		Confidence:          e.lastConfidence,
		Direction:           e.direction,
		BatteryVoltage:      e.batteryVoltage,
		Calibrated:          e.calibrated,
		CalibrationProgress: e.calibrationProgressLocked(time.Now()),
		RMS:                 e.lastRMS,
		Timestamp:           time.Now(),
	}
}

// SpectrogramWindow returns the current mel history, oldest frame first
func (e *Engine) SpectrogramWindow() [][]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Window()
}

// NoiseFloor returns the active per-band noise floor in dB
func (e *Engine) NoiseFloor() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spectral.NoiseFloor()
}
