package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"savings-platform/internal/auth"
	"savings-platform/pkg/logger"
	"savings-platform/pkg/utils"
)

const (
	moneyOpLimit = 4
	moneyOpTTL   = 30 * time.Second
)

// MoneyOpLimit caps in-flight money operations per user. A slot is
// acquired before the handler runs and released when it returns; the
// TTL bounds leaked slots if the process dies mid-request.
//
// With a nil Redis client the middleware is a pass-through so local
// setups without Redis still work.
func MoneyOpLimit(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}
		uid, err := auth.UserID(c.Request.Context())
		if err != nil {
			abort(c, http.StatusUnauthorized, "authentication required", "unauthenticated")
			return
		}

		key := "moneyop:" + uid
		acquired, err := utils.AcquireConcurrencyCap(c.Request.Context(), rdb, key, moneyOpLimit, moneyOpTTL)
		if err != nil {
			// Redis being down should not block payments.
			logger.FromGin(c).Warn("money op cap unavailable", "error", err)
			c.Next()
			return
		}
		if !acquired {
			abort(c, http.StatusTooManyRequests, "too many concurrent operations", "too_many_requests")
			return
		}
		defer func() {
			if err := utils.ReleaseConcurrencyCap(c.Request.Context(), rdb, key); err != nil {
				logger.FromGin(c).Warn("money op cap release failed", "error", err)
			}
		}()

		c.Next()
	}
}
