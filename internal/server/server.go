// Package server provides the HTTP API for varta
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/vartalabs/varta/internal/config"
	"github.com/vartalabs/varta/internal/detect"
	"github.com/vartalabs/varta/internal/health"
)

// Server is the HTTP server for varta
type Server struct {
	app       *fiber.App
	cfg       *config.Config
	engine    *detect.Engine
	logger    *slog.Logger
	wsHub     *WSHub
	checker   *health.Checker
	startTime time.Time
	version   string
}

// New creates a new HTTP server
func New(cfg *config.Config, engine *detect.Engine, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "varta",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(requestLogger(logger))

	s := &Server{
		app:       app,
		cfg:       cfg,
		engine:    engine,
		logger:    logger,
		wsHub:     NewWSHub(engine, logger),
		startTime: time.Now(),
		version:   version,
	}

	// Register routes
	s.registerRoutes()

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	// Health check
	s.app.Get("/health", s.healthHandler)

	// Metrics endpoint
	s.app.Get("/metrics", s.metricsHandler)

	api := s.app.Group("/api")

	api.Get("/detection", s.detectionHandler)
	api.Get("/detection/stream", s.wsHub.UpgradeHandler())
	api.Get("/direction", s.directionHandler)
	api.Get("/spectrogram", s.spectrogramHandler)

	// Config endpoint
	api.Get("/config", s.configHandler)

	// Stats endpoint
	api.Get("/stats", s.statsHandler)
}

// SetHealthChecker attaches a component health checker. Call before
// Start.
func (s *Server) SetHealthChecker(checker *health.Checker) {
	s.checker = checker
}

// healthHandler returns service health
func (s *Server) healthHandler(c *fiber.Ctx) error {
	uptime := time.Since(s.startTime)

	mode := "unknown"
	status := "ok"
	if s.engine != nil {
		mode = s.engine.Mode().String()
		if mode == "ERROR" {
			status = "degraded"
		}
	}

	resp := fiber.Map{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(uptime.Seconds()),
		"mode":           mode,
	}

	if s.checker != nil {
		hs := s.checker.GetStatus()
		if hs.Status != "ok" {
			resp["status"] = hs.Status
		}
		resp["components"] = hs.Components
	}

	return c.JSON(resp)
}

// detectionHandler returns the current detection snapshot
func (s *Server) detectionHandler(c *fiber.Ctx) error {
	if s.engine == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "detection engine not available",
		})
	}

	return c.JSON(s.engine.Snapshot())
}

// directionHandler returns the current direction estimate
func (s *Server) directionHandler(c *fiber.Ctx) error {
	if s.engine == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "detection engine not available",
		})
	}

	return c.JSON(s.engine.Snapshot().Direction)
}

// spectrogramHandler returns the rolling mel window and noise floor
func (s *Server) spectrogramHandler(c *fiber.Ctx) error {
	if s.engine == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "detection engine not available",
		})
	}

	return c.JSON(fiber.Map{
		"mel_bins":    s.cfg.Audio.MelBins,
		"time_frames": s.cfg.Audio.SpecTimeFrames,
		"window":      s.engine.SpectrogramWindow(),
		"noise_floor": s.engine.NoiseFloor(),
	})
}

// configHandler returns current configuration
func (s *Server) configHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"server": fiber.Map{
			"port":             s.cfg.Server.Port,
			"read_timeout_ms":  s.cfg.Server.ReadTimeout.Milliseconds(),
			"write_timeout_ms": s.cfg.Server.WriteTimeout.Milliseconds(),
		},
		"audio": fiber.Map{
			"sample_rate":      s.cfg.Audio.SampleRate,
			"fft_size":         s.cfg.Audio.FFTSize,
			"hop_size":         s.cfg.Audio.HopSize,
			"mel_bins":         s.cfg.Audio.MelBins,
			"spec_time_frames": s.cfg.Audio.SpecTimeFrames,
		},
		"array": fiber.Map{
			"mic_spacing_mm": s.cfg.Array.MicSpacingMm,
			"speed_of_sound": s.cfg.Array.SpeedOfSound,
		},
		"detection": fiber.Map{
			"confidence_threshold": s.cfg.Detection.ConfidenceThreshold,
			"min_detections":       s.cfg.Detection.MinDetections,
			"detection_window_ms":  s.cfg.Detection.DetectionWindow.Milliseconds(),
		},
		"alert": fiber.Map{
			"holdoff_ms":  s.cfg.Alert.Holdoff.Milliseconds(),
			"duration_ms": s.cfg.Alert.Duration.Milliseconds(),
		},
	})
}

// statsHandler returns engine statistics
func (s *Server) statsHandler(c *fiber.Ctx) error {
	if s.engine == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "engine not available",
		})
	}

	return c.JSON(s.engine.Stats())
}

// metricsHandler returns Prometheus-format metrics
func (s *Server) metricsHandler(c *fiber.Ctx) error {
	if s.engine == nil {
		return c.Status(503).SendString("# no engine available\n")
	}

	snap := s.engine.Snapshot()
	stats := s.engine.Stats()

	metrics := fmt.Sprintf(`# HELP varta_mode Current operating mode
# TYPE varta_mode gauge
varta_mode{mode=%q} 1

# HELP varta_confidence Latest classifier confidence
# TYPE varta_confidence gauge
varta_confidence %f

# HELP varta_detection_count Detections inside the current window
# TYPE varta_detection_count gauge
varta_detection_count %d

# HELP varta_azimuth_degrees Smoothed direction of arrival
# TYPE varta_azimuth_degrees gauge
varta_azimuth_degrees %f

# HELP varta_direction_confidence Direction estimate confidence
# TYPE varta_direction_confidence gauge
varta_direction_confidence %f

# HELP varta_battery_volts Battery pack voltage
# TYPE varta_battery_volts gauge
varta_battery_volts %f

# HELP varta_muted Alert mute state (1=haptic only)
# TYPE varta_muted gauge
varta_muted %d

# HELP varta_frames_processed Total capture frames processed
# TYPE varta_frames_processed counter
varta_frames_processed %d

# HELP varta_stale_frames Total stale capture frames
# TYPE varta_stale_frames counter
varta_stale_frames %d

# HELP varta_detections Total above-threshold classifier results
# TYPE varta_detections counter
varta_detections %d

# HELP varta_alerts_issued Total alert pulses issued
# TYPE varta_alerts_issued counter
varta_alerts_issued %d

# HELP varta_classify_errors Total classifier inference failures
# TYPE varta_classify_errors counter
varta_classify_errors %d

# HELP varta_capture_errors Total frame acquisition failures
# TYPE varta_capture_errors counter
varta_capture_errors %d

# HELP varta_uptime_seconds Server uptime in seconds
# TYPE varta_uptime_seconds gauge
varta_uptime_seconds %d

# HELP varta_websocket_clients Current WebSocket client count
# TYPE varta_websocket_clients gauge
varta_websocket_clients %d
`,
		snap.Mode,
		snap.Confidence,
		snap.DetectionCount,
		snap.Direction.AzimuthDeg,
		snap.Direction.Confidence,
		snap.BatteryVoltage,
		boolToInt(snap.Muted),
		stats.FramesProcessed,
		stats.StaleFrames,
		stats.Detections,
		stats.AlertsIssued,
		stats.ClassifyErrors,
		stats.CaptureErrors,
		int64(time.Since(s.startTime).Seconds()),
		s.wsHub.ClientCount(),
	)

	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(metrics)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		"port", s.cfg.Server.Port,
	)

	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.Server.Port))
}

// WSHub returns the WebSocket hub for external control
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close WebSocket hub
	s.wsHub.Close()

	// Shutdown Fiber with timeout from context
	done := make(chan error, 1)
	go func() {
		done <- s.app.Shutdown()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
