package detect

import (
	"time"

	"github.com/vartalabs/varta/internal/doa"
)

// EventKind identifies what an Event reports
type EventKind string

const (
	// EventDetection fires on each above-threshold classifier result
	EventDetection EventKind = "detection"
	// EventAlert fires when an alert pulse is issued
	EventAlert EventKind = "alert"
	// EventModeChange fires on every mode transition
	EventModeChange EventKind = "mode_change"
	// EventBatteryLow fires once when the pack drops below the low mark
	EventBatteryLow EventKind = "battery_low"
	// EventBatteryCritical fires when the engine enters LOW_BATTERY
	EventBatteryCritical EventKind = "battery_critical"
	// EventCalibrated fires when a noise floor capture completes
	EventCalibrated EventKind = "calibrated"
	// EventMuteChange fires when the operator toggles mute
	EventMuteChange EventKind = "mute_change"
)

// Event is a state change the engine reports to observers (the stream
// hub and the uplink). Fields beyond Kind, Mode, and Timestamp are set
// only where they apply.
type Event struct {
	Kind       EventKind `json:"kind"`
	Mode       string    `json:"mode"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
	Direction  doa.State `json:"direction,omitempty"`
	Voltage    float64   `json:"voltage,omitempty"`
	Muted      bool      `json:"muted,omitempty"`
	PeakFreqHz float64   `json:"peak_freq_hz,omitempty"`
}

// EventSink receives engine events. Sinks must not block; slow
// consumers drop on their side.
type EventSink func(Event)
