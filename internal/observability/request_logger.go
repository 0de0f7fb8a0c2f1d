package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the correlation id in and out of the service.
const RequestIDHeader = "X-Request-ID"

// RequestLogger assigns a request id, then logs and counts every request.
func RequestLogger(logger *zap.Logger, metrics *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDHeader, requestID)

		err := c.Next()

		status := c.Response().StatusCode()
		duration := time.Since(start)
		path, method := RouteLabels(c)

		metrics.RecordRequest(path, method, status, duration)
		logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
		)
		return err
	}
}

// RouteLabels returns the matched route pattern and method as label values.
// Fiber strings alias pooled buffers, so both are copied before they outlive the request.
// Unmatched requests report the pattern of the last middleware, which keeps label cardinality bounded.
func RouteLabels(c *fiber.Ctx) (path, method string) {
	return utils.CopyString(c.Route().Path), utils.CopyString(c.Method())
}
