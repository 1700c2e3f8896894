package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/pkg/metrics"
	"github.com/zots0127/filevault/pkg/middleware"
)

// FilesPrefix is the route group of the file API
const FilesPrefix = "/v1/files"

// Handlers groups the route handlers mounted by NewRouter
type Handlers struct {
	Upload *UploadHandler
	Files  *FileHandler
	Serve  *ServeHandler
	Batch  *BatchHandler
	Health *HealthHandler
}

// RouterConfig carries the cross-cutting pieces of the router
type RouterConfig struct {
	Chain       *middleware.MiddlewareChain
	Auth        *middleware.Authentication
	Metrics     *metrics.MetricsCollector
	MetricsPath string
}

// NewRouter builds the gin engine. Credentials are resolved on every
// request; routes that need a principal sit behind RequireAuth while signed
// downloads, batch archives and probes stay public.
func NewRouter(cfg RouterConfig, h Handlers) *gin.Engine {
	r := gin.New()
	if cfg.Chain != nil {
		cfg.Chain.Apply(r)
	}
	if cfg.Auth != nil {
		r.Use(cfg.Auth.Middleware())
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorBody{Error: ErrorDetail{Kind: entities.KindNotFound, Detail: "route not found"}})
	})

	h.Health.RegisterRoutes(r)
	r.GET("/.well-known/jwks.json", jwksHandler(cfg.Auth))
	if cfg.Metrics != nil {
		cfg.Metrics.RegisterRoutes(r, cfg.MetricsPath)
	}

	authed := r.Group("", middleware.RequireAuth())
	h.Serve.RegisterDirectRoutes(authed)

	files := r.Group(FilesPrefix)
	files.GET("/healthz", h.Health.Healthz)
	h.Serve.RegisterSignedRoutes(files)
	h.Batch.RegisterDownloadRoutes(files)

	private := files.Group("", middleware.RequireAuth())
	h.Upload.RegisterRoutes(private)
	h.Files.RegisterRoutes(private)
	h.Batch.RegisterMintRoutes(private)

	return r
}

// jwksHandler publishes the RSA verification key. Without one the endpoint
// reports 503.
func jwksHandler(auth *middleware.Authentication) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth != nil {
			if set, ok := auth.JWKS(); ok {
				c.JSON(http.StatusOK, set)
				return
			}
		}
		c.JSON(http.StatusServiceUnavailable, ErrorBody{Error: ErrorDetail{
			Kind:   entities.KindInternal,
			Detail: "no RSA public key configured",
		}})
	}
}
