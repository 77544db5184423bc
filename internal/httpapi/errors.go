package httpapi

import (
	"errors"
	"net/http"

	"savings-platform/internal/autosave"
	"savings-platform/internal/investing"
	"savings-platform/internal/kyc"
	"savings-platform/internal/settlement"
	"savings-platform/internal/store"
	"savings-platform/internal/wallet"
	"savings-platform/internal/webhook"
	"savings-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// respondError maps internal sentinel errors onto HTTP responses. Every
// 4xx carries a stable machine-readable code; unknown errors become a
// generic 500 so internals never leak to clients.
func respondError(c *gin.Context, err error) {
	var kycErr *kyc.RequiredError
	if errors.As(err, &kycErr) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":          "kyc level insufficient",
			"code":           "kyc_required",
			"required_level": int(kycErr.Required),
			"current_level":  int(kycErr.Current),
			"next_steps":     kycErr.NextSteps,
		})
		return
	}

	switch {
	case errors.Is(err, settlement.ErrInvalidArgument),
		errors.Is(err, investing.ErrInvalidArgument),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, autosave.ErrInvalidPolicy):
		abort(c, http.StatusBadRequest, "invalid request", "invalid_argument")
	case errors.Is(err, wallet.ErrInsufficientBalance):
		abort(c, http.StatusBadRequest, "insufficient balance", "insufficient_balance")
	case errors.Is(err, investing.ErrExceedsHoldings):
		abort(c, http.StatusBadRequest, "requested amount exceeds holdings", "exceeds_holdings")
	case errors.Is(err, investing.ErrBelowMinimum):
		abort(c, http.StatusBadRequest, "amount below product minimum", "below_minimum")
	case errors.Is(err, settlement.ErrVerificationFailed):
		abort(c, http.StatusBadRequest, "payment verification failed", "verification_failed")
	case errors.Is(err, settlement.ErrForbidden), errors.Is(err, investing.ErrForbidden):
		abort(c, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, store.ErrNotFound):
		abort(c, http.StatusNotFound, "not found", "not_found")
	case errors.Is(err, settlement.ErrAlreadyProcessed), errors.Is(err, investing.ErrInvalidState):
		abort(c, http.StatusConflict, "already processed", "already_processed")
	case errors.Is(err, store.ErrConflict):
		abort(c, http.StatusConflict, "conflict", "conflict")
	case errors.Is(err, investing.ErrProductInactive):
		abort(c, http.StatusUnprocessableEntity, "product is not open for investment", "product_inactive")
	case errors.Is(err, investing.ErrNavUnavailable):
		abort(c, http.StatusServiceUnavailable, "nav not available yet", "nav_unavailable")
	case errors.Is(err, webhook.ErrSignatureMismatch):
		abort(c, http.StatusUnauthorized, "invalid signature", "invalid_signature")
	default:
		logger.FromGin(c).Error("request failed", "error", err)
		abort(c, http.StatusInternalServerError, "internal error", "internal")
	}
}

func abort(c *gin.Context, status int, msg, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}
