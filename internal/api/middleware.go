package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"relief-alert-service/internal/logging"
)

const (
	userIDHeader    = "X-User-ID"
	userIDKey       = "userID"
	requestIDHeader = "X-Request-ID"
)

// RequestLoggingMiddleware tags every request with an id, echoed in the
// response, and logs it once handled.
func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"client":     c.ClientIP(),
		}).Infof("Request: %s %s, Status: %d, Latency: %v", method, path, status, latency)
	}
}

// RequireUser reads the caller's id from the X-User-ID header set by the
// auth gateway.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(userIDHeader)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			fail(c, http.StatusUnauthorized, "Missing or invalid "+userIDHeader+" header")
			c.Abort()
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
