// varta: portable acoustic drone sensor daemon
// Detects rotor noise, estimates direction of arrival, and alerts the
// operator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vartalabs/varta/internal/alert"
	"github.com/vartalabs/varta/internal/board"
	"github.com/vartalabs/varta/internal/capture"
	"github.com/vartalabs/varta/internal/classify"
	"github.com/vartalabs/varta/internal/config"
	"github.com/vartalabs/varta/internal/detect"
	"github.com/vartalabs/varta/internal/health"
	"github.com/vartalabs/varta/internal/server"
	"github.com/vartalabs/varta/internal/uplink"
)

var (
	version     = "1.0.0"
	configPath  = flag.String("config", "/etc/varta/config.yaml", "config file path")
	showVersion = flag.Bool("version", false, "print version and exit")
	debug       = flag.Bool("debug", false, "enable debug logging")
	useMock     = flag.Bool("mock", false, "use synthetic capture source and board (for testing)")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("varta %s\n", version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", *configPath, err)
		cfg = config.Default()
	}

	// Override log level if debug flag is set
	if *debug {
		cfg.Logging.Level = "debug"
	}

	// Setup logging
	logger := setupLogger(cfg.Logging)

	logger.Info("starting varta",
		"version", version,
		"config", *configPath,
		"port", cfg.Server.Port,
	)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize capture source
	captureCfg := capture.DeviceConfig{
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FFTSize,
		HopSize:    cfg.Audio.HopSize,
		DeviceName: cfg.Audio.Device,
	}

	var source capture.Source
	if *useMock {
		logger.Info("using synthetic capture source")
		source = capture.NewMockSourceWithSweep(cfg.Audio.FFTSize, cfg.Audio.SampleRate)
	} else {
		source = capture.NewSourceWithFallback(captureCfg, logger)
	}
	defer source.Close()

	logger.Info("capture source ready",
		"type", source.Name(),
		"healthy", source.Healthy(),
	)

	// Initialize carrier board
	var brd board.Board
	if *useMock {
		logger.Info("using mock carrier board")
		brd = board.NewMockBoard()
	} else {
		brd = board.NewBoardWithFallback(logger)
	}
	defer brd.Close()

	logger.Info("carrier board ready",
		"type", brd.Name(),
		"healthy", brd.Healthy(),
	)

	// Alert signaler
	signaler := alert.NewSignaler(brd, logger)
	go func() {
		if err := signaler.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("signaler error", "error", err)
		}
	}()

	// Classifier sidecar
	classifier := classify.NewHTTPClassifier(classify.Config{
		BaseURL: cfg.Classifier.BaseURL,
		Timeout: cfg.Classifier.Timeout,
	}, logger)

	// Detection engine
	engine, err := detect.New(cfg, source, classifier, brd, signaler, logger)
	if err != nil {
		logger.Error("failed to create detection engine", "error", err)
		os.Exit(1)
	}

	// Confirm state changes on the actuators
	engine.Subscribe(func(ev detect.Event) {
		switch ev.Kind {
		case detect.EventCalibrated:
			go signaler.Play(ctx, alert.CalibrationDonePattern)
		case detect.EventBatteryLow, detect.EventBatteryCritical:
			go signaler.Play(ctx, alert.LowBatteryPattern)
		}
	})

	// Optional monitoring uplink
	var up *uplink.Client
	if cfg.Uplink.Enabled {
		uplinkCfg := uplink.DefaultConfig()
		uplinkCfg.URL = cfg.Uplink.URL
		uplinkCfg.PingInterval = cfg.Uplink.PingInterval

		up = uplink.NewClient(uplinkCfg, logger)
		engine.Subscribe(up.PublishEvent)

		if err := up.Connect(ctx); err != nil {
			logger.Warn("uplink connect failed", "error", err)
		}
		defer up.Close()
	}

	// Button poller feeding the engine
	poller := board.NewPoller(brd, logger)
	go poller.Run(ctx)
	go func() {
		for ev := range poller.Events() {
			engine.HandleButton(ev)
		}
	}()

	// Start detection loop
	go func() {
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("detection loop error", "error", err)
		}
	}()

	// Component health
	checker := health.NewChecker(version, source, brd)
	go checker.Run(ctx, 5*time.Second)

	// Create server
	srv := server.New(cfg, engine, logger, version)
	srv.SetHealthChecker(checker)

	// Start WebSocket hub in background
	go srv.WSHub().Run(ctx)

	// Start server in background
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	go signaler.Play(ctx, alert.StartupPattern)

	// Print startup info
	printStartupBanner(cfg, version)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("received shutdown signal", "signal", sig.String())

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		cfg.Server.GracefulTimeout,
	)
	defer shutdownCancel()

	// Stop in order: server -> loops -> hardware
	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}

	cancel()
	signaler.Stop()

	logger.Info("varta stopped")
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func printStartupBanner(cfg *config.Config, version string) {
	fmt.Println()
	fmt.Println("varta v" + version)
	fmt.Println("   Portable acoustic drone sensor")
	fmt.Println()
	fmt.Printf("Running at http://0.0.0.0:%d\n", cfg.Server.Port)
	fmt.Println()
	fmt.Println("   Endpoints:")
	fmt.Println("   GET  /health               - Health check")
	fmt.Println("   GET  /api/detection        - Detection snapshot")
	fmt.Println("   WS   /api/detection/stream - Real-time detection stream")
	fmt.Println("   GET  /api/direction        - Direction of arrival")
	fmt.Println("   GET  /api/spectrogram      - Mel window and noise floor")
	fmt.Println("   GET  /api/stats            - Engine statistics")
	fmt.Println("   GET  /metrics              - Prometheus metrics")
	fmt.Println()
	fmt.Println("   Press Ctrl+C to stop")
	fmt.Println()
}
