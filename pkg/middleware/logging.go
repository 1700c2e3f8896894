package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// AccessLog emits one structured entry per request
type AccessLog struct {
	logger    Logger
	skipPaths []string
}

// NewAccessLog creates the access log middleware. Requests whose path starts
// with one of skipPaths are not logged.
func NewAccessLog(logger Logger, skipPaths []string) *AccessLog {
	return &AccessLog{logger: logger, skipPaths: skipPaths}
}

// Middleware returns the Gin access log middleware
func (l *AccessLog) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.shouldSkipPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		principal := PrincipalFrom(c)
		userID, _ := principal.UserID()
		fields := []interface{}{
			"client_ip", GetClientIP(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"response_time_ms", time.Since(start).Milliseconds(),
			"user_agent", c.Request.UserAgent(),
			"auth_type", principal.AuthType(),
			"user_id", userID,
			"request_id", GetRequestID(c),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			l.logger.Error("request", fields...)
		case status >= 400:
			l.logger.Warn("request", fields...)
		default:
			l.logger.Info("request", fields...)
		}
	}
}

// shouldSkipPath checks if the path should be skipped
func (l *AccessLog) shouldSkipPath(path string) bool {
	for _, skipPath := range l.skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

// AuditLogger records file activity separately from the access log
type AuditLogger struct {
	logger Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogFileDownload records a served file. via is "signed" or "direct".
func (al *AuditLogger) LogFileDownload(c *gin.Context, key, via string, status int, bytes int64) {
	principal := PrincipalFrom(c)
	userID, _ := principal.UserID()
	al.logger.Info("file_download",
		"activity", "file_download",
		"key", key,
		"via", via,
		"status", status,
		"bytes", bytes,
		"range", c.GetHeader("Range"),
		"client_ip", GetClientIP(c),
		"auth_type", principal.AuthType(),
		"user_id", userID,
		"request_id", GetRequestID(c),
	)
}
