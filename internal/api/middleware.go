package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	ownerIDHeader = "X-Owner-ID"
	ownerIDKey    = "ownerID"
)

// ownerMiddleware trusts the owner id set by the authenticating proxy in
// front of the server. An owner seen for the first time gets a row without
// credentials, which its items reference.
func (server *Server) ownerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := c.GetHeader(ownerIDHeader)
		if ownerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Message: "not authenticated",
			})
			return
		}
		if err := server.dbClient.Owner(c.Request.Context()).Ensure(ownerID); err != nil {
			server.abortWithError(c, fmt.Errorf("Owner.Ensure: %w", err))
			return
		}
		c.Set(ownerIDKey, ownerID)
		c.Next()
	}
}

func ownerID(c *gin.Context) string {
	return c.GetString(ownerIDKey)
}

func (server *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		server.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()

		logger := server.logger.DebugContext
		if status >= http.StatusInternalServerError {
			logger = server.logger.WarnContext
		}
		logger(c.Request.Context(), "handled a request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"ownerID", ownerID(c),
			"bytes", c.Writer.Size(),
		)
	}
}
