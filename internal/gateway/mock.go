package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockClient is an in-process gateway for tests and local development.
// It remembers orders it created and can mint valid payment signatures,
// which keeps end-to-end settlement tests honest about verification.
type MockClient struct {
	keySecret string

	mu     sync.Mutex
	orders map[string]CreateOrderResult

	// FailCreateOrder simulates a gateway outage.
	FailCreateOrder bool
}

func NewMockClient(keySecret string) *MockClient {
	return &MockClient{
		keySecret: keySecret,
		orders:    make(map[string]CreateOrderResult),
	}
}

func (m *MockClient) Name() string { return "mock" }

func (m *MockClient) HealthCheck(_ context.Context) error { return nil }

func (m *MockClient) CreateOrder(_ context.Context, req CreateOrderRequest) (CreateOrderResult, error) {
	if m.FailCreateOrder {
		return CreateOrderResult{}, fmt.Errorf("gateway: create order: simulated failure")
	}
	if req.AmountMinor <= 0 {
		return CreateOrderResult{}, fmt.Errorf("gateway: amount must be positive")
	}
	currency := req.Currency
	if currency == "" {
		currency = Currency
	}

	res := CreateOrderResult{
		OrderID:     "order_" + uuid.NewString(),
		AmountMinor: req.AmountMinor,
		Currency:    currency,
	}

	m.mu.Lock()
	m.orders[res.OrderID] = res
	m.mu.Unlock()
	return res, nil
}

func (m *MockClient) FetchPayment(_ context.Context, paymentID string) (Payment, error) {
	if paymentID == "" {
		return Payment{}, fmt.Errorf("gateway: payment id is required")
	}
	return Payment{
		PaymentID: paymentID,
		Method:    "upi",
		VPA:       "user@mockbank",
		UTR:       "MOCK" + paymentID,
		Status:    "captured",
	}, nil
}

// SignPayment produces the signature the real gateway would attach for a
// captured payment. Test helper.
func (m *MockClient) SignPayment(orderID, paymentID string) string {
	return PaymentSignature(m.keySecret, orderID, paymentID)
}
