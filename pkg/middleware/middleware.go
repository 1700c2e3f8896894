package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zots0127/filevault/pkg/metrics"
)

const (
	// RequestIDHeader carries the request id in both directions
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
	maxRequestID = 128
)

// Config defines middleware configuration
type Config struct {
	// Access log
	EnableLogging bool     `json:"enable_logging"`
	SkipPaths     []string `json:"skip_paths"`

	// Transport limits
	MaxBodyBytes int64 `json:"max_body_bytes"`

	EnableSecurity bool       `json:"enable_security"`
	CORS           CORSConfig `json:"cors"`
}

// DefaultConfig returns default middleware configuration
func DefaultConfig() *Config {
	return &Config{
		EnableLogging:  true,
		SkipPaths:      []string{"/healthz", "/metrics"},
		MaxBodyBytes:   5120 << 20,
		EnableSecurity: true,
		CORS:           DefaultCORSConfig(),
	}
}

// MiddlewareChain holds all middleware instances
type MiddlewareChain struct {
	config  *Config
	logger  Logger
	metrics *metrics.MetricsCollector
}

// NewMiddlewareChain creates a new middleware chain. A nil collector disables
// request metrics.
func NewMiddlewareChain(config *Config, logger Logger, mc *metrics.MetricsCollector) *MiddlewareChain {
	if config == nil {
		config = DefaultConfig()
	}
	return &MiddlewareChain{
		config:  config,
		logger:  logger,
		metrics: mc,
	}
}

// Apply applies all configured middleware to the Gin engine. Authentication
// is attached per route group by the router, not here.
func (m *MiddlewareChain) Apply(r *gin.Engine) {
	// Order matters: the request id must exist before anything logs
	r.Use(RequestID())
	r.Use(Recovery(m.logger))

	if m.config.EnableSecurity {
		r.Use(SecurityHeaders())
	}
	if m.config.CORS.Enabled {
		r.Use(CORS(m.config.CORS))
	}
	if m.config.EnableLogging {
		r.Use(NewAccessLog(m.logger, m.config.SkipPaths).Middleware())
	}
	if m.metrics != nil {
		r.Use(Metrics(m.metrics))
	}
	if m.config.MaxBodyBytes > 0 {
		r.Use(BodyLimit(m.config.MaxBodyBytes))
	}
}

// GetConfig returns the middleware configuration
func (m *MiddlewareChain) GetConfig() *Config {
	return m.config
}

// Logger interface for middleware logging
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
}

// RequestID reuses an inbound X-Request-ID or assigns a fresh one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > maxRequestID {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, or "" outside it
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Recovery turns a panic into a 500 with the standard error body
func Recovery(logger Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered",
			"panic", recovered,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", GetRequestID(c),
		)
		abortWithError(c, http.StatusInternalServerError, "internal", "internal server error")
	})
}

// Metrics records one observation per request, labelled by route template
func Metrics(mc *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		mc.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// BodyLimit caps request bodies at maxBytes. Declared lengths over the cap
// are refused up front; chunked bodies fail on read past the cap.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			abortWithError(c, http.StatusRequestEntityTooLarge, "validation_error", "request body too large")
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// GetClientIP extracts real client IP from request
func GetClientIP(c *gin.Context) string {
	// Check X-Forwarded-For header
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		// Take the first IP if multiple are listed
		if commaIdx := strings.Index(xff, ","); commaIdx != -1 {
			return strings.TrimSpace(xff[:commaIdx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to remote address
	return c.ClientIP()
}

// abortWithError writes the same error envelope the handlers use
func abortWithError(c *gin.Context, status int, kind, detail string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"kind":   kind,
			"detail": detail,
		},
	})
}
