package detect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vartalabs/varta/internal/board"
	"github.com/vartalabs/varta/internal/capture"
	"github.com/vartalabs/varta/internal/classify"
	"github.com/vartalabs/varta/internal/config"
)

type fakeAlerter struct {
	mu           sync.Mutex
	triggers     int
	stops        int
	lastDuration time.Duration
	lastHaptic   bool
}

func (f *fakeAlerter) Trigger(duration time.Duration, hapticOnly bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	f.lastDuration = duration
	f.lastHaptic = hapticOnly
}

func (f *fakeAlerter) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeAlerter) Active() bool {
	return false
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.SampleRate = 8000
	cfg.Audio.FFTSize = 256
	cfg.Audio.HopSize = 64
	cfg.Audio.MelBins = 8
	cfg.Audio.SpecTimeFrames = 4
	cfg.Detection.CalibrationPeriod = 100 * time.Millisecond
	return cfg
}

type testRig struct {
	engine     *Engine
	source     *capture.MockSource
	classifier *classify.MockClassifier
	board      *board.MockBoard
	alerter    *fakeAlerter
}

func newTestRig(t *testing.T, cfg *config.Config) *testRig {
	t.Helper()

	source := capture.NewMockSource(cfg.Audio.FFTSize, cfg.Audio.SampleRate)
	classifier := classify.NewMockClassifier()
	brd := board.NewMockBoard()
	alerter := &fakeAlerter{}

	engine, err := New(cfg, source, classifier, brd, alerter, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &testRig{
		engine:     engine,
		source:     source,
		classifier: classifier,
		board:      brd,
		alerter:    alerter,
	}
}

// runTicks drives n ticks spaced by step starting at base, returning
// the time after the last tick.
func runTicks(rig *testRig, base time.Time, n int, step time.Duration) time.Time {
	ctx := context.Background()
	now := base
	for i := 0; i < n; i++ {
		now = now.Add(step)
		rig.engine.tick(ctx, now)
	}
	return now
}

func TestEngine_ConfirmedDetectionAlertsExactlyOnce(t *testing.T) {
	cfg := testConfig()
	rig := newTestRig(t, cfg)
	rig.engine.mode = ModeScan
	rig.classifier.SetConfidence(0.9)

	var alertTransitions, alertEvents int
	rig.engine.Subscribe(func(ev Event) {
		switch {
		case ev.Kind == EventModeChange && ev.Mode == "ALERT":
			alertTransitions++
		case ev.Kind == EventAlert:
			alertEvents++
		}
	})

	// 4 warmup ticks fill the spectrogram; the next 3 confident results
	// reach min_detections. Holdoff suppresses further pulses.
	runTicks(rig, time.Now(), 12, 10*time.Millisecond)

	if got := rig.engine.Mode(); got != ModeAlert {
		t.Errorf("mode = %v, want ALERT", got)
	}
	if alertTransitions != 1 {
		t.Errorf("SCAN->ALERT transitions = %d, want exactly 1", alertTransitions)
	}
	if alertEvents != 1 || rig.alerter.triggers != 1 {
		t.Errorf("alerts = %d events / %d triggers, want exactly 1 each",
			alertEvents, rig.alerter.triggers)
	}
	if rig.alerter.lastDuration != cfg.Alert.Duration {
		t.Errorf("alert duration = %v, want %v", rig.alerter.lastDuration, cfg.Alert.Duration)
	}
	if rig.alerter.lastHaptic {
		t.Error("unmuted alert should not be haptic-only")
	}
}

func TestEngine_HoldoffBlocksAlertRearm(t *testing.T) {
	cfg := testConfig()
	cfg.Detection.DetectionWindow = 500 * time.Millisecond
	rig := newTestRig(t, cfg)
	rig.engine.mode = ModeScan
	rig.classifier.SetConfidence(0.9)

	last := runTicks(rig, time.Now(), 8, 10*time.Millisecond)
	if rig.engine.Mode() != ModeAlert || rig.alerter.triggers != 1 {
		t.Fatalf("setup: mode = %v, triggers = %d", rig.engine.Mode(), rig.alerter.triggers)
	}

	// Quiet long enough for the detection window to expire.
	rig.classifier.SetConfidence(0.1)
	last = runTicks(rig, last, 1, 600*time.Millisecond)
	if rig.engine.Mode() != ModeScan {
		t.Fatalf("mode after window expiry = %v, want SCAN", rig.engine.Mode())
	}

	// Re-confirmation while the holdoff is still running must neither
	// pulse nor flip back to ALERT.
	rig.classifier.SetConfidence(0.9)
	last = runTicks(rig, last, 4, 10*time.Millisecond)
	if got := rig.engine.Mode(); got != ModeScan {
		t.Errorf("mode during holdoff = %v, want SCAN", got)
	}
	if rig.alerter.triggers != 1 {
		t.Errorf("triggers during holdoff = %d, want 1", rig.alerter.triggers)
	}

	// Once the holdoff elapses the next confirmation alerts again.
	runTicks(rig, last, 1, cfg.Alert.Holdoff)
	if got := rig.engine.Mode(); got != ModeAlert {
		t.Errorf("mode after holdoff = %v, want ALERT", got)
	}
	if rig.alerter.triggers != 2 {
		t.Errorf("triggers after holdoff = %d, want 2", rig.alerter.triggers)
	}
}

func TestEngine_BelowThresholdNeverAlerts(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.engine.mode = ModeScan
	rig.classifier.SetConfidence(0.5)

	runTicks(rig, time.Now(), 20, 10*time.Millisecond)

	if got := rig.engine.Mode(); got != ModeScan {
		t.Errorf("mode = %v, want SCAN", got)
	}
	if rig.alerter.triggers != 0 {
		t.Errorf("triggers = %d, want 0", rig.alerter.triggers)
	}
	if rig.engine.Stats().Detections != 0 {
		t.Errorf("Detections = %d, want 0", rig.engine.Stats().Detections)
	}
}

func TestEngine_DetectionWindowExpiryReturnsToScan(t *testing.T) {
	cfg := testConfig()
	rig := newTestRig(t, cfg)
	rig.engine.mode = ModeScan
	rig.classifier.SetConfidence(0.9)

	last := runTicks(rig, time.Now(), 8, 10*time.Millisecond)
	if rig.engine.Mode() != ModeAlert {
		t.Fatal("expected ALERT after confident sequence")
	}

	// Silence past the detection window decays the count and arms SCAN.
	rig.classifier.SetConfidence(0.1)
	runTicks(rig, last.Add(cfg.Detection.DetectionWindow), 1, 10*time.Millisecond)

	if got := rig.engine.Mode(); got != ModeScan {
		t.Errorf("mode after expiry = %v, want SCAN", got)
	}
	if rig.engine.Snapshot().DetectionCount != 0 {
		t.Errorf("detection count = %d, want 0", rig.engine.Snapshot().DetectionCount)
	}
}

func TestEngine_MonitorCountsWithoutAlerting(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.engine.mode = ModeMonitor
	rig.classifier.SetConfidence(0.9)

	runTicks(rig, time.Now(), 12, 10*time.Millisecond)

	if got := rig.engine.Mode(); got != ModeMonitor {
		t.Errorf("mode = %v, want MONITOR", got)
	}
	if rig.alerter.triggers != 0 {
		t.Errorf("triggers = %d, want 0 in MONITOR", rig.alerter.triggers)
	}
	if stats := rig.engine.Stats(); stats.Detections == 0 {
		t.Error("MONITOR should still count detections")
	}
}

func TestEngine_ClassifierErrorCountsAsZeroConfidence(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.engine.mode = ModeScan
	rig.classifier.SetError(errors.New("sidecar down"))

	runTicks(rig, time.Now(), 8, 10*time.Millisecond)

	if rig.alerter.triggers != 0 {
		t.Error("inference failures must not trigger alerts")
	}
	stats := rig.engine.Stats()
	if stats.ClassifyErrors == 0 {
		t.Error("ClassifyErrors should be counted")
	}
	if rig.engine.Snapshot().Confidence != 0 {
		t.Errorf("confidence = %f, want 0", rig.engine.Snapshot().Confidence)
	}
}

func TestEngine_StaleFrameSkipsClassification(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.engine.mode = ModeScan
	rig.classifier.SetConfidence(0.9)

	// Fill the history first so classification would otherwise run.
	last := runTicks(rig, time.Now(), 5, 10*time.Millisecond)
	callsBefore := rig.classifier.Calls()

	rig.source.FailNext()
	runTicks(rig, last, 1, 10*time.Millisecond)

	if rig.classifier.Calls() != callsBefore {
		t.Error("stale frame must not reach the classifier")
	}
	if rig.engine.Stats().StaleFrames != 1 {
		t.Errorf("StaleFrames = %d, want 1", rig.engine.Stats().StaleFrames)
	}
}

func TestEngine_BatteryCriticalSuspendsAndRecovers(t *testing.T) {
	cfg := testConfig()
	rig := newTestRig(t, cfg)
	rig.engine.mode = ModeScan

	base := time.Now()
	rig.board.SetVoltage(6.0)
	last := runTicks(rig, base, 1, 10*time.Millisecond)

	if got := rig.engine.Mode(); got != ModeLowBattery {
		t.Fatalf("mode = %v, want LOW_BATTERY", got)
	}

	// Frames are not processed while suspended.
	framesBefore := rig.engine.Stats().FramesProcessed
	last = runTicks(rig, last, 3, 10*time.Millisecond)
	if rig.engine.Stats().FramesProcessed != framesBefore {
		t.Error("LOW_BATTERY must suspend the audio pipeline")
	}

	// Recovery needs the voltage above critical+margin, held for the
	// full recovery hold.
	rig.board.SetVoltage(cfg.Power.CriticalVoltage + cfg.Power.RecoveryMargin + 0.1)
	last = runTicks(rig, last, 1, 10*time.Millisecond)
	if rig.engine.Mode() != ModeLowBattery {
		t.Fatal("recovery must not be immediate")
	}

	runTicks(rig, last, 1, cfg.Power.RecoveryHold+10*time.Millisecond)
	if got := rig.engine.Mode(); got != ModeScan {
		t.Errorf("mode after recovery hold = %v, want SCAN", got)
	}
}

func TestEngine_BatteryCheckedEveryTick(t *testing.T) {
	cfg := testConfig()
	rig := newTestRig(t, cfg)
	rig.engine.mode = ModeScan

	// Healthy tick, then a critical drop one hop later: the very next
	// tick must suspend, with no polling interval in between.
	last := runTicks(rig, time.Now(), 1, 10*time.Millisecond)
	rig.board.SetVoltage(6.0)
	runTicks(rig, last, 1, 10*time.Millisecond)

	if got := rig.engine.Mode(); got != ModeLowBattery {
		t.Errorf("mode one tick after critical drop = %v, want LOW_BATTERY", got)
	}
	if rig.alerter.stops == 0 {
		t.Error("critical battery must stop any active alert")
	}
}

func TestEngine_BatteryDipBelowMarginResetsRecovery(t *testing.T) {
	cfg := testConfig()
	rig := newTestRig(t, cfg)
	rig.engine.mode = ModeScan

	rig.board.SetVoltage(6.0)
	last := runTicks(rig, time.Now(), 1, 10*time.Millisecond)

	// Start recovering, then dip again: the hold timer must restart.
	rig.board.SetVoltage(cfg.Power.CriticalVoltage + cfg.Power.RecoveryMargin + 0.1)
	last = runTicks(rig, last, 1, 10*time.Millisecond)
	rig.board.SetVoltage(6.0)
	last = runTicks(rig, last, 1, 10*time.Millisecond)
	rig.board.SetVoltage(cfg.Power.CriticalVoltage + cfg.Power.RecoveryMargin + 0.1)
	last = runTicks(rig, last, 1, 10*time.Millisecond)

	runTicks(rig, last, 1, cfg.Power.RecoveryHold/2)
	if got := rig.engine.Mode(); got != ModeLowBattery {
		t.Errorf("mode = %v, want LOW_BATTERY until the full hold elapses", got)
	}
}

func TestEngine_ButtonShortPressTogglesMonitor(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.engine.mode = ModeScan

	rig.engine.HandleButton(board.EventShortPress)
	if got := rig.engine.Mode(); got != ModeMonitor {
		t.Fatalf("mode = %v, want MONITOR", got)
	}

	rig.engine.HandleButton(board.EventShortPress)
	if got := rig.engine.Mode(); got != ModeScan {
		t.Errorf("mode = %v, want SCAN", got)
	}
}

func TestEngine_ShortPressDuringAlertStopsSignal(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.engine.mode = ModeScan
	rig.classifier.SetConfidence(0.9)
	runTicks(rig, time.Now(), 8, 10*time.Millisecond)
	if rig.engine.Mode() != ModeAlert {
		t.Fatal("expected ALERT")
	}

	rig.engine.HandleButton(board.EventShortPress)

	if got := rig.engine.Mode(); got != ModeMonitor {
		t.Errorf("mode = %v, want MONITOR", got)
	}
	if rig.alerter.stops == 0 {
		t.Error("acknowledging an alert must stop the signaler")
	}
	if rig.engine.Snapshot().DetectionCount != 0 {
		t.Error("acknowledging an alert must reset the detection count")
	}
}

func TestEngine_DoublePressMutesAlerts(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.engine.mode = ModeScan
	rig.classifier.SetConfidence(0.9)

	rig.engine.HandleButton(board.EventDoublePress)
	if !rig.engine.Muted() {
		t.Fatal("double press should mute")
	}

	runTicks(rig, time.Now(), 8, 10*time.Millisecond)

	if rig.alerter.triggers == 0 {
		t.Fatal("muted alerts still fire")
	}
	if !rig.alerter.lastHaptic {
		t.Error("muted alert should be haptic-only")
	}

	rig.engine.HandleButton(board.EventDoublePress)
	if rig.engine.Muted() {
		t.Error("second double press should unmute")
	}
}

func TestEngine_LongPressRunsCalibration(t *testing.T) {
	cfg := testConfig()
	rig := newTestRig(t, cfg)
	rig.engine.mode = ModeScan
	rig.classifier.SetConfidence(0.9)

	var calibrated int
	rig.engine.Subscribe(func(ev Event) {
		if ev.Kind == EventCalibrated {
			calibrated++
		}
	})

	rig.engine.HandleButton(board.EventLongPress)
	if got := rig.engine.Mode(); got != ModeCalibrate {
		t.Fatalf("mode = %v, want CALIBRATE", got)
	}

	callsBefore := rig.classifier.Calls()
	runTicks(rig, time.Now(), 3, 20*time.Millisecond)
	if rig.classifier.Calls() != callsBefore {
		t.Error("calibration frames must not reach the classifier")
	}
	if rig.engine.Mode() != ModeCalibrate {
		t.Fatal("calibration ended early")
	}

	runTicks(rig, time.Now().Add(cfg.Detection.CalibrationPeriod), 1, 20*time.Millisecond)

	if got := rig.engine.Mode(); got != ModeScan {
		t.Errorf("mode after calibration = %v, want SCAN", got)
	}
	if calibrated != 1 {
		t.Errorf("calibrated events = %d, want 1", calibrated)
	}
	if !rig.engine.Snapshot().Calibrated {
		t.Error("snapshot should report a committed noise floor")
	}
}

func TestEngine_CriticalBatteryAbortsCalibration(t *testing.T) {
	cfg := testConfig()
	rig := newTestRig(t, cfg)
	rig.engine.mode = ModeScan

	floorBefore := rig.engine.NoiseFloor()

	rig.engine.HandleButton(board.EventLongPress)
	last := runTicks(rig, time.Now(), 2, 10*time.Millisecond)

	rig.board.SetVoltage(6.0)
	runTicks(rig, last, 1, 10*time.Millisecond)

	if got := rig.engine.Mode(); got != ModeLowBattery {
		t.Fatalf("mode = %v, want LOW_BATTERY", got)
	}
	floorAfter := rig.engine.NoiseFloor()
	for i := range floorBefore {
		if floorAfter[i] != floorBefore[i] {
			t.Fatal("aborted calibration must not touch the noise floor")
		}
	}
	if rig.engine.Snapshot().Calibrated {
		t.Error("aborted calibration must not mark the engine calibrated")
	}
}

func TestEngine_RepeatedCaptureFailuresEnterError(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.engine.mode = ModeScan
	rig.source.Close()

	runTicks(rig, time.Now(), maxConsecutiveErrors+2, 10*time.Millisecond)

	if got := rig.engine.Mode(); got != ModeError {
		t.Errorf("mode = %v, want ERROR after repeated capture failures", got)
	}
	if rig.engine.Stats().CaptureErrors < maxConsecutiveErrors {
		t.Errorf("CaptureErrors = %d, want >= %d",
			rig.engine.Stats().CaptureErrors, maxConsecutiveErrors)
	}
}
