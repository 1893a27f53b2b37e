package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/club-manager/internal/logger"
)

// RequestLogger emits one access log line per request with the client
// address masked.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := []zap.Field{
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.Int("status", c.Response().Status),
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.Duration("latency", time.Since(start)),
				zap.String("client_ip", logger.MaskIP(c.RealIP())),
				zap.String("caller", userID(c)),
			}
			if err != nil {
				log.Error("request failed", append(fields, zap.Error(err))...)
				return nil
			}
			log.Info("request completed", fields...)
			return nil
		}
	}
}
