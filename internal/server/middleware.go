package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mbd888/pagewatch/internal/logging"
)

const maxRequestIDLen = 128

func recoverPanics() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic in handler",
			"panic", recovered,
			"route", c.FullPath(),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
	})
}

// requestContext tags the request with an ID (the caller's X-Request-ID when
// usable) and a logger carrying it.
func requestContext(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)

		ctx := logging.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(logging.WithLogger(ctx, base))
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if status >= http.StatusInternalServerError {
			attrs = append(attrs, "client_ip", c.ClientIP())
		}
		ctx := c.Request.Context()
		logging.L(ctx).Log(ctx, statusLevel(status), "request", attrs...)
	}
}

func statusLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
