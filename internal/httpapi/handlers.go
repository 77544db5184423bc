package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"savings-platform/internal/audit"
	"savings-platform/internal/auth"
	"savings-platform/internal/autosave"
	"savings-platform/internal/invest"
	"savings-platform/internal/investing"
	"savings-platform/internal/rbac"
	"savings-platform/internal/reporting"
	"savings-platform/internal/settlement"
	"savings-platform/internal/store"
	"savings-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth       *auth.Manager
	Settlement *settlement.Service
	Invest     *investing.Service
	Reporting  *reporting.Service
	Store      store.Store
	Audit      *audit.Service
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json", "invalid_argument")
		return
	}
	if req.UserID == "" || req.Role == "" {
		abort(c, http.StatusBadRequest, "user_id and role required", "invalid_argument")
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

func callerID(c *gin.Context) (string, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil || uid == "" {
		abort(c, http.StatusUnauthorized, "authentication required", "unauthorized")
		return "", false
	}
	return uid, true
}

// --- Payments ---

type createOrderRequest struct {
	AmountMinor int64             `json:"amount_minor"`
	Notes       map[string]string `json:"notes,omitempty"`
}

func (h Handlers) CreatePaymentOrder(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json", "invalid_argument")
		return
	}
	res, err := h.Settlement.CreateOrder(c.Request.Context(), uid, req.AmountMinor, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type verifyPaymentRequest struct {
	OrderID   string `json:"gateway_order_id"`
	PaymentID string `json:"gateway_payment_id"`
	Signature string `json:"gateway_signature"`
}

func (h Handlers) VerifyPayment(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json", "invalid_argument")
		return
	}
	res, err := h.Settlement.VerifyAndSettle(c.Request.Context(), uid, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Wallet ---

func (h Handlers) GetWallet(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	res, err := h.Reporting.WalletSummary(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) ListTransactions(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 50)
	res, err := h.Reporting.History(c.Request.Context(), uid, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Auto-save settings ---

func (h Handlers) GetAutoSavePolicy(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	p, err := h.Settlement.GetAutoSavePolicy(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type updatePolicyRequest struct {
	Enabled                bool    `json:"enabled"`
	Percentage             float64 `json:"percentage"`
	MinTransactionMinor    int64   `json:"min_transaction_minor"`
	MaxPerTransactionMinor int64   `json:"max_per_transaction_minor"`
}

func (h Handlers) UpdateAutoSavePolicy(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req updatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json", "invalid_argument")
		return
	}
	p, err := h.Settlement.UpdateAutoSavePolicy(c.Request.Context(), autosave.Policy{
		UserID:                 uid,
		Enabled:                req.Enabled,
		Percentage:             req.Percentage,
		MinTransactionMinor:    req.MinTransactionMinor,
		MaxPerTransactionMinor: req.MaxPerTransactionMinor,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// --- Investments ---

func (h Handlers) ListProducts(c *gin.Context) {
	products, err := h.Store.ListProducts(c.Request.Context(), true)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

type purchaseRequest struct {
	ProductID   string `json:"product_id"`
	AmountMinor int64  `json:"amount_minor"`
}

func (h Handlers) PurchaseInvestment(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json", "invalid_argument")
		return
	}
	res, err := h.Invest.Purchase(c.Request.Context(), uid, req.ProductID, req.AmountMinor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type redeemRequest struct {
	// AmountMinor, when present, requests a partial redemption.
	AmountMinor *int64 `json:"amount_minor,omitempty"`
}

func (h Handlers) RedeemInvestment(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if id == "" {
		abort(c, http.StatusBadRequest, "investment id required", "invalid_argument")
		return
	}
	// An empty body means full redemption.
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abort(c, http.StatusBadRequest, "invalid json", "invalid_argument")
		return
	}
	res, err := h.Invest.Redeem(c.Request.Context(), uid, id, req.AmountMinor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) GetPortfolio(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	res, err := h.Reporting.Portfolio(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Admin ---

type createProductRequest struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Category           string  `json:"category"`
	RiskLevel          string  `json:"risk_level"`
	MinInvestmentMinor int64   `json:"min_investment_minor"`
	ExitLoadPercent    float64 `json:"exit_load_percent"`
}

func (h Handlers) AdminCreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json", "invalid_argument")
		return
	}
	if req.ID == "" || req.Name == "" || req.MinInvestmentMinor < 0 || req.ExitLoadPercent < 0 {
		abort(c, http.StatusBadRequest, "id and name required, amounts non-negative", "invalid_argument")
		return
	}
	now := time.Now().UTC()
	p := invest.Product{
		ID:                 req.ID,
		Name:               req.Name,
		Category:           req.Category,
		RiskLevel:          req.RiskLevel,
		MinInvestmentMinor: req.MinInvestmentMinor,
		ExitLoadPercent:    req.ExitLoadPercent,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := h.Store.CreateProduct(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}
	h.auditAdmin(c, "product created", p.ID, p)
	c.JSON(http.StatusCreated, p)
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (h Handlers) AdminSetProductActive(c *gin.Context) {
	id := c.Param("id")
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		abort(c, http.StatusBadRequest, "active flag required", "invalid_argument")
		return
	}
	if err := h.Store.SetProductActive(c.Request.Context(), id, *req.Active); err != nil {
		respondError(c, err)
		return
	}
	h.auditAdmin(c, "product active flag changed", id, req)
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": *req.Active})
}

type upsertNavRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
	Nav  string `json:"nav"`  // decimal, minor units per unit
}

func (h Handlers) AdminUpsertNav(c *gin.Context) {
	id := c.Param("id")
	var req upsertNavRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json", "invalid_argument")
		return
	}
	day, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		abort(c, http.StatusBadRequest, "date must be YYYY-MM-DD", "invalid_argument")
		return
	}
	nav, err := decimal.NewFromString(req.Nav)
	if err != nil || !nav.IsPositive() {
		abort(c, http.StatusBadRequest, "nav must be a positive decimal", "invalid_argument")
		return
	}

	q := invest.NavQuote{ProductID: id, Date: day.UTC(), Nav: nav, CreatedAt: time.Now().UTC()}
	if err := h.Store.UpsertNav(c.Request.Context(), q); err != nil {
		respondError(c, err)
		return
	}
	if h.Audit != nil {
		actor, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		meta, _ := json.Marshal(q)
		if err := h.Audit.LogNavUpdate(c.Request.Context(), actor, role, c.ClientIP(), id, string(meta)); err != nil {
			logger.FromGin(c).Warn("audit append failed", "error", err)
		}
	}
	c.JSON(http.StatusCreated, q)
}

func (h Handlers) auditAdmin(c *gin.Context, message, productID string, payload any) {
	if h.Audit == nil {
		return
	}
	actor, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	meta, _ := json.Marshal(payload)
	if err := h.Audit.LogAdminAction(c.Request.Context(), actor, role, c.ClientIP(), message, productID, string(meta)); err != nil {
		logger.FromGin(c).Warn("audit append failed", "error", err)
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// RequireAdmin is the middleware chain for admin-only routes.
func RequireAdmin() gin.HandlerFunc {
	return rbac.RequireAnyRole(rbac.RoleAdmin)
}
