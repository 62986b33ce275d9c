package server

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// unloggedPaths are scrape and stream endpoints hit continuously by
// dashboards; logging them would drown out everything else.
var unloggedPaths = map[string]struct{}{
	"/health":               {},
	"/metrics":              {},
	"/api/detection/stream": {},
}

// requestLogger logs API requests, with server errors raised to ERROR
// so a failing field unit stands out in aggregated logs.
func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		path := c.Path()
		if _, skip := unloggedPaths[path]; skip {
			return err
		}

		status := c.Response().StatusCode()
		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}

		logger.LogAttrs(c.UserContext(), level, "http request",
			slog.String("method", c.Method()),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			slog.Int("bytes", len(c.Response().Body())),
			slog.String("ip", c.IP()),
		)

		return err
	}
}
