package gateway

import (
	"context"
	"time"
)

// Currency is fixed; multi-currency is out of scope for this service.
const Currency = "INR"

// Client defines the provider-agnostic payment gateway interface used by
// business logic.
//
// Rules:
//   - No gateway SDK calls outside this package.
//   - Keep request/response types provider-agnostic; raw provider payloads
//     belong in metadata if needed.
//   - Every call must honor the context deadline; order creation failures
//     must leave no local state behind (callers persist only on success).
type Client interface {
	Name() string
	HealthCheck(ctx context.Context) error

	CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error)
	FetchPayment(ctx context.Context, paymentID string) (Payment, error)
}

// CreateOrderRequest asks the gateway to open a payment order.
type CreateOrderRequest struct {
	// AmountMinor is the amount in minor units (paise).
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`

	// Receipt is our correlation id for the order (ledger transaction id).
	Receipt string `json:"receipt"`

	// Notes are free-form key/values echoed back by the gateway.
	Notes map[string]string `json:"notes,omitempty"`
}

type CreateOrderResult struct {
	// OrderID is the gateway's identifier, e.g. "order_Nxq...".
	OrderID     string    `json:"order_id"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// Payment is the gateway's view of a captured payment. VPA and UTR are
// populated for UPI payments only.
type Payment struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Method    string `json:"method"`
	VPA       string `json:"vpa,omitempty"`
	UTR       string `json:"utr,omitempty"`

	AmountMinor int64  `json:"amount_minor"`
	Status      string `json:"status"`
}
