package capture

import (
	"context"
	"log/slog"
)

// Source provides multi-channel audio frames from hardware
type Source interface {
	// AcquireFrame blocks until a full frame of samples is available
	AcquireFrame(ctx context.Context) (*Frame, error)

	// Close releases hardware resources
	Close() error

	// Healthy returns true if the source is operational
	Healthy() bool

	// Name returns the source type name
	Name() string
}

// NewSourceWithFallback opens the capture device, falling back to a
// synthetic source when no hardware is available.
// Use the fallback for development and testing only.
func NewSourceWithFallback(cfg DeviceConfig, logger *slog.Logger) Source {
	dev, err := NewDeviceSource(cfg, logger)
	if err == nil {
		return dev
	}

	logger.Warn("capture device unavailable, using synthetic source",
		"error", err,
	)
	return NewMockSource(cfg.FrameSize, cfg.SampleRate)
}
