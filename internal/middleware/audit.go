package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit logs one structured line per completed request, carrying the request
// id and, once authentication ran, the caller's user id.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
		}
		if reqID, ok := c.Locals(requestIDKey).(string); ok && reqID != "" {
			attrs = append(attrs, slog.String("request_id", reqID))
		}
		if userID, ok := c.Locals("user_id").(int64); ok {
			attrs = append(attrs, slog.Int64("user_id", userID))
		}

		if err != nil {
			logger.Error("request completed", append(attrs, slog.Any("error", err))...)
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
