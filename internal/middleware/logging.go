package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"playroom/internal/observability"
)

// StructuredLogger returns Fiber middleware logging each request with slog.
func StructuredLogger() fiber.Handler {
	log := observability.Component("http")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		fields := []any{
			slog.Int("status", c.Response().StatusCode()),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}
		if uid := UID(c); uid != "" {
			fields = append(fields, slog.String("uid", uid))
		}
		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
			log.Error("request failed", fields...)
		} else {
			log.Info("request processed", fields...)
		}
		return err
	}
}
