package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/filevault/internal/domain/entities"
	"github.com/zots0127/filevault/pkg/logger"
	"github.com/zots0127/filevault/pkg/middleware"
)

// ErrorBody is the JSON envelope for every failed request
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure. Field names the offending input when
// the client can correct it.
type ErrorDetail struct {
	Kind   entities.ErrorKind `json:"kind"`
	Detail string             `json:"detail"`
	Field  string             `json:"field,omitempty"`
}

// StatusFor maps an error kind onto its HTTP status
func StatusFor(kind entities.ErrorKind) int {
	switch kind {
	case entities.KindValidation, entities.KindIntegrityMismatch:
		return http.StatusBadRequest
	case entities.KindQuotaExceeded:
		return http.StatusRequestEntityTooLarge
	case entities.KindSessionNotFound, entities.KindNotFound:
		return http.StatusNotFound
	case entities.KindAccessDenied, entities.KindSignatureInvalid:
		return http.StatusForbidden
	case entities.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an ErrorBody. Internal failures are logged with
// their cause and reported without detail so paths never leak.
func respondError(c *gin.Context, log logger.Logger, err error) {
	_ = c.Error(err)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorBody{Error: ErrorDetail{
			Kind:   entities.KindValidation,
			Detail: "request body too large",
		}})
		return
	}

	var domainErr *entities.Error
	if !errors.As(err, &domainErr) || domainErr.Kind == entities.KindInternal {
		log.Error("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", middleware.GetRequestID(c),
			"error", err,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{
			Kind:   entities.KindInternal,
			Detail: "internal server error",
		}})
		return
	}

	c.AbortWithStatusJSON(StatusFor(domainErr.Kind), ErrorBody{Error: ErrorDetail{
		Kind:   domainErr.Kind,
		Detail: domainErr.Detail,
		Field:  domainErr.Field,
	}})
}

// bindJSON decodes the request body and reports failures as validation errors
func bindJSON(c *gin.Context, log logger.Logger, out interface{}) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, log, err)
			return false
		}
		respondError(c, log, entities.NewValidationError("body", "invalid JSON body: %v", err))
		return false
	}
	return true
}
