package handler

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/usecase"
	"github.com/zots0127/filevault/pkg/logger"
	"github.com/zots0127/filevault/pkg/middleware"
)

// UploadHandler serves the init, part and complete endpoints
type UploadHandler struct {
	upload *usecase.UploadUseCase
	log    logger.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(upload *usecase.UploadUseCase, log logger.Logger) *UploadHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UploadHandler{upload: upload, log: log}
}

// RegisterRoutes registers the upload protocol routes
func (h *UploadHandler) RegisterRoutes(router gin.IRoutes) {
	router.POST("/init", h.Init)
	router.POST("/part", h.Part)
	router.POST("/complete", h.Complete)
}

// Init allocates an upload session
func (h *UploadHandler) Init(c *gin.Context) {
	var req entities.InitRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	result, err := h.upload.Init(c.Request.Context(), middleware.PrincipalFrom(c), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PartRequest carries one base64 encoded chunk
type PartRequest struct {
	UploadID    string `json:"uploadId"`
	PartNumber  int    `json:"partNumber"`
	ChunkBase64 string `json:"chunkBase64"`
}

// Part stores one numbered chunk. JSON bodies carry the chunk as base64;
// an application/octet-stream body is the raw chunk, with uploadId and
// partNumber given as query parameters.
func (h *UploadHandler) Part(c *gin.Context) {
	var (
		req   PartRequest
		chunk io.Reader = c.Request.Body
	)

	if strings.HasPrefix(c.ContentType(), "application/octet-stream") {
		req.UploadID = c.Query("uploadId")
		n, err := strconv.Atoi(c.Query("partNumber"))
		if err != nil {
			respondError(c, h.log, entities.NewValidationError("partNumber", "partNumber must be an integer"))
			return
		}
		req.PartNumber = n
	} else {
		if !bindJSON(c, h.log, &req) {
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.ChunkBase64)
		if err != nil {
			respondError(c, h.log, entities.NewValidationError("chunkBase64", "chunk is not valid base64"))
			return
		}
		chunk = bytes.NewReader(raw)
	}

	if req.UploadID == "" {
		respondError(c, h.log, entities.NewValidationError("uploadId", "uploadId is required"))
		return
	}

	if _, err := h.upload.Part(c.Request.Context(), middleware.PrincipalFrom(c), req.UploadID, req.PartNumber, chunk); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"partNumber": req.PartNumber,
	})
}

// CompleteResponse describes the stored file
type CompleteResponse struct {
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	Mime   string `json:"mime"`
	SHA256 string `json:"sha256"`
}

// Complete assembles the session into a stored file
func (h *UploadHandler) Complete(c *gin.Context) {
	var req entities.CompleteRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	if req.UploadID == "" {
		respondError(c, h.log, entities.NewValidationError("uploadId", "uploadId is required"))
		return
	}

	file, err := h.upload.Complete(c.Request.Context(), middleware.PrincipalFrom(c), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, CompleteResponse{
		Key:    file.Key,
		Size:   file.Size,
		Mime:   file.MimeType,
		SHA256: file.SHA256,
	})
}
