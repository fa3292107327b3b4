package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/michael-freling/telecloud/internal/blob"
	"github.com/michael-freling/telecloud/internal/db"
	"github.com/michael-freling/telecloud/internal/tree"
)

type errorResponse struct {
	Message string `json:"message"`
}

func statusOf(err error) int {
	switch {
	case db.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, tree.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, tree.ErrCycleRejected):
		return http.StatusConflict
	case errors.Is(err, blob.ErrPreviewNotAllowed):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, blob.ErrUploadFailed), errors.Is(err, blob.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (server *Server) abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	message := err.Error()
	switch status {
	case http.StatusNotFound:
		message = "item not found"
	case http.StatusBadGateway:
		message = "the storage service is unavailable, please retry later"
	case http.StatusInternalServerError:
		message = "internal error"
	}
	if status >= http.StatusInternalServerError {
		server.logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ownerID", ownerID(c),
			"error", err,
		)
	}
	c.AbortWithStatusJSON(status, errorResponse{Message: message})
}
