package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/filevault/internal/usecase"
	"github.com/zots0127/filevault/pkg/logger"
	"github.com/zots0127/filevault/pkg/middleware"
)

// EstimateHeader carries the pre-compression size estimate of a batch
// archive. Content-Length is not sent because the real size is only known
// once the archive is built.
const EstimateHeader = "X-Content-Length-Estimate"

// BatchHandler serves batch token minting and ZIP streaming
type BatchHandler struct {
	batch *usecase.BatchUseCase
	log   logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(batch *usecase.BatchUseCase, log logger.Logger) *BatchHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &BatchHandler{batch: batch, log: log}
}

// RegisterMintRoutes registers the authenticated mint route
func (h *BatchHandler) RegisterMintRoutes(router gin.IRoutes) {
	router.POST("/batch-download", h.Mint)
}

// RegisterDownloadRoutes registers the token-gated download route
func (h *BatchHandler) RegisterDownloadRoutes(router gin.IRoutes) {
	router.GET("/batch-download/:token", h.Download)
}

// BatchRequest lists the keys to bundle
type BatchRequest struct {
	Keys []string `json:"keys"`
}

// Mint validates every key and returns a token for them
func (h *BatchHandler) Mint(c *gin.Context) {
	var req BatchRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	token, err := h.batch.Mint(c.Request.Context(), middleware.PrincipalFrom(c), req.Keys)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token.Token})
}

// Download streams the token's files as one ZIP archive
func (h *BatchHandler) Download(c *gin.Context) {
	ctx := c.Request.Context()

	dl, err := h.batch.Prepare(ctx, c.Param("token"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "application/zip")
	header.Set("Content-Disposition", attachment(dl.Filename))
	header.Set(EstimateHeader, strconv.FormatInt(dl.EstimatedSize, 10))
	c.Status(http.StatusOK)

	if _, err := h.batch.Stream(ctx, dl, c.Writer); err != nil {
		if c.Writer.Written() {
			// Headers are gone; the truncated body is all the client sees.
			_ = c.Error(err)
			return
		}
		header.Del("Content-Type")
		header.Del("Content-Disposition")
		header.Del(EstimateHeader)
		respondError(c, h.log, err)
	}
}
