package handler

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/internal/usecase"
	"github.com/zots0127/filevault/pkg/byterange"
	"github.com/zots0127/filevault/pkg/logger"
	"github.com/zots0127/filevault/pkg/metrics"
	"github.com/zots0127/filevault/pkg/middleware"
	"github.com/zots0127/filevault/pkg/signer"
)

const (
	viaSigned = "signed"
	viaDirect = "direct"
)

// ServeHandler streams raw file bytes for signed and owner-scoped downloads
type ServeHandler struct {
	files   *usecase.FileUseCase
	audit   *middleware.AuditLogger
	metrics *metrics.MetricsCollector
	log     logger.Logger
}

// NewServeHandler creates a new serve handler
func NewServeHandler(files *usecase.FileUseCase, mc *metrics.MetricsCollector, log logger.Logger) *ServeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ServeHandler{
		files:   files,
		audit:   middleware.NewAuditLogger(log),
		metrics: mc,
		log:     log,
	}
}

// RegisterSignedRoutes registers the signature-gated routes. They need no
// principal.
func (h *ServeHandler) RegisterSignedRoutes(router gin.IRoutes) {
	router.GET("/get/:encodedKey", h.Signed)
	router.HEAD("/get/:encodedKey", h.Signed)
}

// RegisterDirectRoutes registers the owner-scoped storage routes
func (h *ServeHandler) RegisterDirectRoutes(router gin.IRoutes) {
	router.GET("/storage/:owner/*path", h.Direct)
	router.HEAD("/storage/:owner/*path", h.Direct)
}

// Signed serves GET /v1/files/get/{encodedKey}?exp&sig
func (h *ServeHandler) Signed(c *gin.Context) {
	exp, err := strconv.ParseInt(c.Query("exp"), 10, 64)
	if err != nil {
		respondError(c, h.log, entities.NewValidationError("exp", "exp must be a unix timestamp"))
		return
	}
	sig := c.Query("sig")
	if sig == "" {
		respondError(c, h.log, entities.NewValidationError("sig", "sig is required"))
		return
	}

	rc, file, err := h.files.OpenSigned(c.Request.Context(), c.Param("encodedKey"), exp, sig)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer rc.Close()

	h.serve(c, rc, file, viaSigned)
}

// Direct serves GET /storage/{owner}/{path...} for the owner or a service
func (h *ServeHandler) Direct(c *gin.Context) {
	key := "storage/" + c.Param("owner") + c.Param("path")

	rc, file, err := h.files.OpenOwned(c.Request.Context(), middleware.PrincipalFrom(c), key)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer rc.Close()

	h.serve(c, rc, file, viaDirect)
}

// serve writes file honoring a single Range. An unsatisfiable or malformed
// range falls back to the full body.
func (h *ServeHandler) serve(c *gin.Context, rc io.ReadSeeker, file *entities.StoredFile, via string) {
	contentType := file.MimeType
	if contentType == "" {
		contentType = entities.DefaultMimeType
	}

	header := c.Writer.Header()
	header.Set("Content-Type", contentType)
	header.Set("Accept-Ranges", "bytes")
	if !file.CreatedAt.IsZero() {
		header.Set("Last-Modified", file.CreatedAt.UTC().Format(http.TimeFormat))
	}
	if disposition, ok := signer.ParseDisposition(c.Query("disposition")); ok && disposition == signer.DispositionAttachment {
		header.Set("Content-Disposition", attachment(file.DisplayName()))
	}

	status := http.StatusOK
	rng, partial := byterange.Parse(c.GetHeader("Range"), file.Size)
	length := file.Size
	if partial {
		status = http.StatusPartialContent
		length = rng.Length()
		header.Set("Content-Range", rng.ContentRange(file.Size))
	}
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	c.Status(status)

	var (
		n   int64
		err error
	)
	if c.Request.Method != http.MethodHead {
		if partial {
			n, err = byterange.Copy(c.Writer, rc, rng)
		} else {
			n, err = byterange.CopyBlocks(c.Writer, rc)
		}
	}
	c.Writer.WriteHeaderNow()

	if err != nil {
		h.log.Warn("file stream interrupted", "key", file.Key, "via", via, "bytes", n, "error", err)
	}
	h.metrics.RecordFileDownload(via, partial, n)
	h.audit.LogFileDownload(c, file.Key, via, status, n)
}

// attachment renders a Content-Disposition value. Names outside printable
// ASCII use the RFC 2231 form.
func attachment(filename string) string {
	for _, r := range filename {
		if r < 0x20 || r > 0x7e {
			if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
				return v
			}
			return "attachment"
		}
	}
	return `attachment; filename="` + quoteEscaper.Replace(filename) + `"`
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
