package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"savings-platform/internal/audit"
	"savings-platform/internal/auth"
	"savings-platform/internal/gateway"
	"savings-platform/internal/investing"
	"savings-platform/internal/kyc"
	"savings-platform/internal/rbac"
	"savings-platform/internal/reporting"
	"savings-platform/internal/settlement"
	"savings-platform/internal/store"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.Memory, *audit.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemory()
	levels := kyc.NewStaticProvider(map[string]kyc.Level{"u1": kyc.LevelFull})
	gw := gateway.NewMockClient("rzp_secret")
	auditRepo := audit.NewMemoryRepo()

	h := Handlers{
		Settlement: settlement.NewService(st, gw, levels, settlement.Config{KeySecret: "rzp_secret", KycLevel1ThresholdMinor: 1_000_000}),
		Invest:     investing.NewService(st, levels),
		Reporting:  reporting.NewService(st),
		Store:      st,
		Audit:      audit.NewService(auditRepo),
	}

	r := gin.New()
	identity := func(userID, role string) gin.HandlerFunc {
		return func(c *gin.Context) {
			ctx := auth.WithIdentity(c.Request.Context(), userID, role)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		}
	}

	user := r.Group("/", identity("u1", rbac.RoleUser))
	user.POST("/payments/orders", h.CreatePaymentOrder)
	user.GET("/wallet", h.GetWallet)
	user.GET("/wallet/transactions", h.ListTransactions)
	user.GET("/autosave", h.GetAutoSavePolicy)
	user.PUT("/autosave", h.UpdateAutoSavePolicy)
	user.GET("/products", h.ListProducts)
	user.POST("/investments", h.PurchaseInvestment)
	user.GET("/portfolio", h.GetPortfolio)

	admin := r.Group("/admin", identity("root", rbac.RoleAdmin), RequireAdmin())
	admin.POST("/products", h.AdminCreateProduct)
	admin.POST("/products/:id/nav", h.AdminUpsertNav)
	admin.PATCH("/products/:id/active", h.AdminSetProductActive)

	return r, st, auditRepo
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreatePaymentOrder_EndToEnd(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPut, "/autosave", gin.H{"enabled": true, "percentage": 20})
	if w.Code != 200 {
		t.Fatalf("autosave update: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/payments/orders", gin.H{"amount_minor": 1000})
	if w.Code != 201 {
		t.Fatalf("create order: %d %s", w.Code, w.Body.String())
	}
	var res settlement.OrderResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.GatewayOrderID == "" || res.AutoSaveAmountMinor != 200 {
		t.Fatalf("unexpected order result: %+v", res)
	}

	w = doJSON(t, r, http.MethodGet, "/wallet/transactions", nil)
	if w.Code != 200 {
		t.Fatalf("history: %d", w.Code)
	}
}

func TestCreatePaymentOrder_RejectsInvalidAmount(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/payments/orders", gin.H{"amount_minor": 0})
	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestKycGate_Returns403WithNextSteps(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// u2 has no KYC level, so a payment at the threshold trips the gate.
	st := store.NewMemory()
	levels := kyc.NewStaticProvider(nil)
	h := Handlers{Settlement: settlement.NewService(st, gateway.NewMockClient("s"), levels, settlement.Config{KeySecret: "s", KycLevel1ThresholdMinor: 500})}
	r := gin.New()
	r.POST("/payments/orders", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u2", rbac.RoleUser)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, h.CreatePaymentOrder)

	w := doJSON(t, r, http.MethodPost, "/payments/orders", gin.H{"amount_minor": 1000})
	if w.Code != 403 {
		t.Fatalf("expected 403, got %d %s", w.Code, w.Body.String())
	}
	var body struct {
		Code      string   `json:"code"`
		NextSteps []string `json:"next_steps"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "kyc_required" || len(body.NextSteps) == 0 {
		t.Fatalf("expected kyc payload, got %s", w.Body.String())
	}
}

func TestAdminProductAndNavFlow(t *testing.T) {
	r, _, auditRepo := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/admin/products", gin.H{
		"id": "p1", "name": "Liquid Fund", "category": "debt",
		"risk_level": "low", "min_investment_minor": 100, "exit_load_percent": 1,
	})
	if w.Code != 201 {
		t.Fatalf("create product: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/admin/products/p1/nav", gin.H{"date": "2024-03-01", "nav": "1000"})
	if w.Code != 201 {
		t.Fatalf("upsert nav: %d %s", w.Code, w.Body.String())
	}

	// Same-day resubmission conflicts.
	w = doJSON(t, r, http.MethodPost, "/admin/products/p1/nav", gin.H{"date": "2024-03-01", "nav": "1001"})
	if w.Code != 409 {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	if len(auditRepo.Events()) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(auditRepo.Events()))
	}

	w = doJSON(t, r, http.MethodGet, "/products", nil)
	if w.Code != 200 {
		t.Fatalf("list products: %d", w.Code)
	}

	// Purchase then portfolio over the wire.
	w = doJSON(t, r, http.MethodPost, "/payments/orders", gin.H{"amount_minor": 100})
	if w.Code != 201 {
		t.Fatalf("order: %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPatch, "/admin/products/p1/active", gin.H{"active": false})
	if w.Code != 200 {
		t.Fatalf("deactivate: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodPost, "/investments", gin.H{"product_id": "p1", "amount_minor": 5000})
	if w.Code != 422 {
		t.Fatalf("inactive product purchase: expected 422, got %d %s", w.Code, w.Body.String())
	}
}

func TestGetWallet_EmptyForNewUser(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/wallet", nil)
	if w.Code != 200 {
		t.Fatalf("wallet: %d", w.Code)
	}
	var res reporting.WalletSummary
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.UserID != "u1" || res.BalanceMinor != 0 {
		t.Fatalf("unexpected summary: %+v", res)
	}
}
