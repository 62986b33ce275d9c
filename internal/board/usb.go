package board

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/gousb"
)

// Carrier board USB identifiers
const (
	VendorID  = 0x2E8A
	ProductID = 0x10AF
)

// Control command IDs. The board firmware exposes one resource per
// peripheral; reads set the high bit of the command ID.
const (
	powerResID   = 10
	batteryCmdID = 1 // BATTERY_MILLIVOLTS: uint32

	inputResID  = 11
	buttonCmdID = 1 // BUTTON_LEVEL: uint8, 1 = pressed

	outputResID    = 12
	buzzerCmdID    = 1 // BUZZER_ENABLE: uint8
	vibrationCmdID = 2 // VIBRATION_ENABLE: uint8
)

// USBBoard talks to the carrier board over USB control transfers
type USBBoard struct {
	logger *slog.Logger

	mu     sync.Mutex
	ctx    *gousb.Context
	dev    *gousb.Device
	closed bool

	// Health tracking
	healthy           bool
	consecutiveErrors int
	maxErrors         int
	lastError         error

	// Reconnection
	reconnectBackoff time.Duration
	maxBackoff       time.Duration
}

// USBBoardConfig configures the USB board connection
type USBBoardConfig struct {
	MaxConsecutiveErrors int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
}

// DefaultUSBBoardConfig returns sensible defaults
func DefaultUSBBoardConfig() USBBoardConfig {
	return USBBoardConfig{
		MaxConsecutiveErrors: 5,
		InitialBackoff:       100 * time.Millisecond,
		MaxBackoff:           5 * time.Second,
	}
}

// NewUSBBoard opens the carrier board
func NewUSBBoard(logger *slog.Logger) (*USBBoard, error) {
	return NewUSBBoardWithConfig(logger, DefaultUSBBoardConfig())
}

// NewUSBBoardWithConfig opens the carrier board with custom connection
// settings
func NewUSBBoardWithConfig(logger *slog.Logger, cfg USBBoardConfig) (*USBBoard, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := &USBBoard{
		logger:           logger,
		healthy:          true,
		maxErrors:        cfg.MaxConsecutiveErrors,
		reconnectBackoff: cfg.InitialBackoff,
		maxBackoff:       cfg.MaxBackoff,
	}

	b.ctx = gousb.NewContext()

	if err := b.openDevice(); err != nil {
		b.ctx.Close()
		return nil, err
	}

	logger.Info("USB carrier board initialized",
		"vendor_id", fmt.Sprintf("0x%04X", VendorID),
		"product_id", fmt.Sprintf("0x%04X", ProductID),
	)

	return b, nil
}

func (b *USBBoard) openDevice() error {
	dev, err := b.ctx.OpenDeviceWithVIDPID(VendorID, ProductID)
	if err != nil {
		return fmt.Errorf("failed to open carrier board: %w", err)
	}

	if dev == nil {
		return fmt.Errorf("carrier board not found (VID=0x%04X PID=0x%04X)", VendorID, ProductID)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		b.logger.Debug("SetAutoDetach failed (non-fatal)", "error", err)
	}

	b.dev = dev
	b.healthy = true
	b.consecutiveErrors = 0

	return nil
}

// controlRead issues an IN control transfer for a peripheral value.
// The first byte of the response is a status byte.
func (b *USBBoard) controlRead(resID, cmdID uint16, payload int) ([]byte, error) {
	if b.closed {
		return nil, fmt.Errorf("board closed")
	}

	if b.dev == nil {
		if err := b.reconnect(); err != nil {
			return nil, err
		}
	}

	data := make([]byte, 1+payload)
	n, err := b.dev.Control(
		gousb.ControlIn|gousb.ControlVendor|gousb.ControlDevice,
		0,          // bRequest
		0x80|cmdID, // wValue (read flag | cmdid)
		resID,      // wIndex (resid)
		data,
	)
	if err != nil {
		b.recordError(err)
		return nil, fmt.Errorf("USB control transfer failed: %w", err)
	}

	if n < len(data) {
		err := fmt.Errorf("short read: got %d bytes, expected %d", n, len(data))
		b.recordError(err)
		return nil, err
	}

	if data[0] != 0 {
		err := fmt.Errorf("board returned error status: %d", data[0])
		b.recordError(err)
		return nil, err
	}

	b.recordSuccess()
	return data[1:], nil
}

// controlWrite issues an OUT control transfer setting a peripheral value
func (b *USBBoard) controlWrite(resID, cmdID uint16, value byte) error {
	if b.closed {
		return fmt.Errorf("board closed")
	}

	if b.dev == nil {
		if err := b.reconnect(); err != nil {
			return err
		}
	}

	_, err := b.dev.Control(
		gousb.ControlOut|gousb.ControlVendor|gousb.ControlDevice,
		0,
		cmdID,
		resID,
		[]byte{value},
	)
	if err != nil {
		b.recordError(err)
		return fmt.Errorf("USB control transfer failed: %w", err)
	}

	b.recordSuccess()
	return nil
}

// ReadBatteryVoltage reads the battery ADC in millivolts and converts
// to volts
func (b *USBBoard) ReadBatteryVoltage() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.controlRead(powerResID, batteryCmdID, 4)
	if err != nil {
		return 0, err
	}

	millivolts := binary.LittleEndian.Uint32(data)
	return float64(millivolts) / 1000.0, nil
}

// ReadButton reads the raw button level
func (b *USBBoard) ReadButton() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.controlRead(inputResID, buttonCmdID, 1)
	if err != nil {
		return false, err
	}

	return data[0] != 0, nil
}

// SetBuzzer drives the audible actuator
func (b *USBBoard) SetBuzzer(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.controlWrite(outputResID, buzzerCmdID, boolByte(on))
}

// SetVibration drives the haptic actuator
func (b *USBBoard) SetVibration(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.controlWrite(outputResID, vibrationCmdID, boolByte(on))
}

func boolByte(on bool) byte {
	if on {
		return 1
	}
	return 0
}

func (b *USBBoard) recordError(err error) {
	b.consecutiveErrors++
	b.lastError = err

	if b.consecutiveErrors >= b.maxErrors {
		b.healthy = false
		b.logger.Warn("carrier board marked unhealthy, will attempt reconnect",
			"consecutive_errors", b.consecutiveErrors,
			"last_error", err,
		)

		// Close device to force reconnect on next call
		if b.dev != nil {
			b.dev.Close()
			b.dev = nil
		}
	}
}

func (b *USBBoard) recordSuccess() {
	if b.consecutiveErrors > 0 {
		b.logger.Info("carrier board recovered",
			"previous_errors", b.consecutiveErrors,
		)
	}
	b.consecutiveErrors = 0
	b.healthy = true
	b.reconnectBackoff = DefaultUSBBoardConfig().InitialBackoff
}

func (b *USBBoard) reconnect() error {
	b.logger.Info("attempting carrier board reconnect",
		"backoff", b.reconnectBackoff,
	)

	time.Sleep(b.reconnectBackoff)

	b.reconnectBackoff *= 2
	if b.reconnectBackoff > b.maxBackoff {
		b.reconnectBackoff = b.maxBackoff
	}

	if err := b.openDevice(); err != nil {
		b.logger.Warn("carrier board reconnect failed", "error", err)
		return err
	}

	b.logger.Info("carrier board reconnect successful")
	return nil
}

// Healthy returns true if the board is operational
func (b *USBBoard) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.healthy && !b.closed
}

// Name returns the board type name
func (b *USBBoard) Name() string {
	return "usb"
}

// Close releases the USB device
func (b *USBBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.dev != nil {
		b.dev.Close()
		b.dev = nil
	}
	if b.ctx != nil {
		b.ctx.Close()
		b.ctx = nil
	}

	b.logger.Info("carrier board closed")
	return nil
}
