package main

import (
	"savings-platform/internal/auth"
	"savings-platform/internal/httpapi"
	"savings-platform/internal/rbac"
	"savings-platform/internal/webhook"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, wh *webhook.Service, authMW, moneyMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Gateway webhooks (public). The HMAC over the raw body is the
	// credential; see internal/webhook.
	r.POST("/webhooks/gateway", wh.Handler())

	// token issuance is public; everything else requires a bearer token
	r.POST("/v1/auth/login", h.Login)

	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "role": role})
		})

		// PAYMENTS
		payments := v1.Group("/payments")
		payments.Use(rbac.RequireAnyRole(rbac.RoleUser, rbac.RoleSupport), moneyMW)
		{
			payments.POST("/orders", h.CreatePaymentOrder)
			payments.POST("/verify", h.VerifyPayment)
		}

		// WALLET
		wallet := v1.Group("/wallet")
		wallet.Use(rbac.RequireAnyRole(rbac.RoleUser, rbac.RoleSupport))
		{
			wallet.GET("", h.GetWallet)
			wallet.GET("/transactions", h.ListTransactions)
		}

		// AUTO-SAVE settings
		autosave := v1.Group("/autosave")
		autosave.Use(rbac.RequireAnyRole(rbac.RoleUser))
		{
			autosave.GET("", h.GetAutoSavePolicy)
			autosave.PUT("", h.UpdateAutoSavePolicy)
		}

		// INVESTMENTS
		v1.GET("/products", h.ListProducts)
		investments := v1.Group("/investments")
		investments.Use(rbac.RequireAnyRole(rbac.RoleUser), moneyMW)
		{
			investments.POST("", h.PurchaseInvestment)
			investments.POST("/:id/redeem", h.RedeemInvestment)
		}
		v1.GET("/portfolio", rbac.RequireAnyRole(rbac.RoleUser, rbac.RoleSupport), h.GetPortfolio)

		// ADMIN
		// Hidden ops_robot is intentionally NOT included unless explicitly desired.
		admin := v1.Group("/admin")
		admin.Use(httpapi.RequireAdmin())
		{
			admin.POST("/products", h.AdminCreateProduct)
			admin.PATCH("/products/:id/active", h.AdminSetProductActive)
			admin.POST("/products/:id/nav", h.AdminUpsertNav)
		}
	}
}
