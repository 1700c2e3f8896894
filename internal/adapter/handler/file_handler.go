package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/usecase"
	"github.com/zots0127/filevault/pkg/logger"
	"github.com/zots0127/filevault/pkg/middleware"
	"github.com/zots0127/filevault/pkg/signer"
)

// FileHandler serves listing, metadata, signed URL and delete endpoints
type FileHandler struct {
	files *usecase.FileUseCase
	log   logger.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(files *usecase.FileUseCase, log logger.Logger) *FileHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &FileHandler{files: files, log: log}
}

// RegisterRoutes registers the authenticated file routes
func (h *FileHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/all", h.List)
	router.GET("/signed-url", h.SignedURL)
	router.GET("/metadata/*key", h.Metadata)
	router.DELETE("/*key", h.Delete)
}

// FileItem is one entry of a listing
type FileItem struct {
	Key       string    `json:"key"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	Mime      string    `json:"mime"`
	CreatedAt time.Time `json:"created_at"`
	Folder    string    `json:"folder"`
}

// ListResponse is the body of GET /all
type ListResponse struct {
	Files      []FileItem `json:"files"`
	TotalCount int        `json:"total_count"`
	TotalSize  int64      `json:"total_size"`
}

// List returns the caller's files. Service callers name the owner with user_id.
func (h *FileHandler) List(c *gin.Context) {
	listing, err := h.files.List(c.Request.Context(), middleware.PrincipalFrom(c), c.Query("user_id"), c.Query("folder"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	items := make([]FileItem, 0, len(listing.Files))
	for _, f := range listing.Files {
		items = append(items, FileItem{
			Key:       f.Key,
			Filename:  f.DisplayName(),
			Size:      f.Size,
			Mime:      f.MimeType,
			CreatedAt: f.CreatedAt,
			Folder:    f.Folder,
		})
	}
	c.JSON(http.StatusOK, ListResponse{
		Files:      items,
		TotalCount: listing.TotalCount,
		TotalSize:  listing.TotalSize,
	})
}

// SignedURL issues a time-limited download link. ttl is in seconds.
func (h *FileHandler) SignedURL(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		respondError(c, h.log, entities.NewValidationError("key", "key is required"))
		return
	}

	disposition, ok := signer.ParseDisposition(c.Query("disposition"))
	if !ok {
		respondError(c, h.log, entities.NewValidationError("disposition", "disposition must be inline or attachment"))
		return
	}

	var ttl time.Duration
	if raw, present := c.GetQuery("ttl"); present {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seconds < 1 {
			respondError(c, h.log, entities.NewValidationError("ttl", "ttl must be a positive number of seconds"))
			return
		}
		ttl = time.Duration(seconds) * time.Second
	}

	signed, err := h.files.SignURL(c.Request.Context(), middleware.PrincipalFrom(c), key, ttl, disposition)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":         signed.URL,
		"expires_in":  signed.ExpiresIn,
		"disposition": disposition,
	})
}

// Metadata returns the stored descriptor for a key
func (h *FileHandler) Metadata(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	file, err := h.files.Metadata(c.Request.Context(), middleware.PrincipalFrom(c), key)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"size":      file.Size,
		"mime":      file.MimeType,
		"sha256":    file.SHA256,
		"createdAt": file.CreatedAt,
	})
}

// Delete removes a file. Both DELETE /v1/files/{key} and
// DELETE /v1/files/delete/{key} are accepted; keys always start with
// storage/ so the prefix is unambiguous.
func (h *FileHandler) Delete(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	key = strings.TrimPrefix(key, "delete/")

	if err := h.files.Delete(c.Request.Context(), middleware.PrincipalFrom(c), key); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "deleted",
		"key":    key,
	})
}
