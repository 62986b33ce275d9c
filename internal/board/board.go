// Package board provides access to the sensor carrier board: battery
// monitoring, the user button, and the buzzer/vibration actuators
package board

import "log/slog"

// Board abstracts the carrier board peripherals
type Board interface {
	// ReadBatteryVoltage returns the pack voltage in volts
	ReadBatteryVoltage() (float64, error)

	// ReadButton returns the raw button level (true = pressed)
	ReadButton() (bool, error)

	// SetBuzzer drives the audible actuator
	SetBuzzer(on bool) error

	// SetVibration drives the haptic actuator
	SetVibration(on bool) error

	// Close releases hardware resources
	Close() error

	// Healthy returns true if the board is operational
	Healthy() bool

	// Name returns the board type name
	Name() string
}

// NewBoardWithFallback opens the USB carrier board, falling back to a
// mock board when no hardware is available.
// Use the fallback for development and testing only.
func NewBoardWithFallback(logger *slog.Logger) Board {
	usb, err := NewUSBBoard(logger)
	if err == nil {
		return usb
	}

	logger.Warn("carrier board unavailable, using mock board",
		"error", err,
		"hint", "ensure libusb is installed and the board is connected",
	)
	return NewMockBoard()
}
