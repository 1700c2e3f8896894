package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/usecase"
)

// ServiceName is reported by the root descriptor
const ServiceName = "filevault"

// HealthHandler handles health check endpoints
type HealthHandler struct {
	healthUseCase *usecase.HealthUseCase
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(healthUseCase *usecase.HealthUseCase) *HealthHandler {
	return &HealthHandler{
		healthUseCase: healthUseCase,
	}
}

// RegisterRoutes registers the detailed health routes
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/", h.Root)
	router.GET("/healthz", h.Healthz)
	router.GET("/health", h.GetHealth)
	router.GET("/health/live", h.GetLiveness)
	router.GET("/health/ready", h.GetReadiness)
}

// Root describes the service
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": ServiceName,
		"version": h.healthUseCase.Version(),
		"status":  "running",
	})
}

// Healthz is the compact storage probe: healthy iff the upload root is
// writable and has more than 1 GiB free.
func (h *HealthHandler) Healthz(c *gin.Context) {
	health := h.healthUseCase.GetStorageHealth(c.Request.Context())

	statusCode := http.StatusOK
	if !health.Healthy() {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, health)
}

// GetHealth returns comprehensive health status
func (h *HealthHandler) GetHealth(c *gin.Context) {
	health, err := h.healthUseCase.GetHealth(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "health check failed",
		})
		return
	}

	// Partial health still serves traffic
	statusCode := http.StatusOK
	if health.Status == entities.HealthStatusDown {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, health)
}

// GetLiveness returns liveness status
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	if h.healthUseCase.GetLiveness(c.Request.Context()) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "dead"})
}

// GetReadiness returns readiness status
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	ready, message := h.healthUseCase.GetReadiness(c.Request.Context())
	if ready {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"message": message,
		})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":  "not_ready",
		"message": message,
	})
}
