package webhook

import (
	"errors"
	"io"
	"net/http"

	"savings-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	// Delivery headers set by the gateway.
	HeaderSignature = "X-Gateway-Signature"
	HeaderEventID   = "X-Gateway-Event-Id"

	maxBodyBytes = 1 << 20
)

// Handler exposes the webhook endpoint. The route is unauthenticated; the
// body signature is the only credential, so the raw bytes must be read
// before any JSON binding touches them.
func (s *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		err = s.Process(c.Request.Context(),
			body,
			c.GetHeader(HeaderSignature),
			c.GetHeader(HeaderEventID),
		)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		case errors.Is(err, ErrSignatureMismatch):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		case errors.Is(err, ErrBadEnvelope):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		default:
			// Non-2xx makes the gateway redeliver, which is what we
			// want for transient storage failures.
			logger.FromGin(c).Error("webhook processing failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		}
	}
}
