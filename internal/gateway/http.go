package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient talks to a Razorpay-style REST gateway.
// Selected at construction time for staging/production; local and test
// environments use MockClient instead. No environment flags in business
// logic.
type HTTPClient struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

type HTTPClientConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string

	// Timeout bounds every gateway call. Defaults to 10s.
	Timeout time.Duration
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" || cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, errors.New("gateway: base url, key id and key secret are required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("gateway: invalid base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:   cfg.BaseURL,
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) Name() string { return "razorpay" }

func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/orders?count=1", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("gateway: health check status %d", resp.StatusCode)
	}
	return nil
}

type createOrderPayload struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	CreatedAt int64  `json:"created_at"`
}

func (c *HTTPClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error) {
	if req.AmountMinor <= 0 {
		return CreateOrderResult{}, errors.New("gateway: amount must be positive")
	}
	currency := req.Currency
	if currency == "" {
		currency = Currency
	}

	body, err := json.Marshal(createOrderPayload{
		Amount:   req.AmountMinor,
		Currency: currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return CreateOrderResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return CreateOrderResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CreateOrderResult{}, fmt.Errorf("gateway: create order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		// Do not leak the gateway error body to callers; it may echo notes.
		return CreateOrderResult{}, fmt.Errorf("gateway: create order status %d", resp.StatusCode)
	}

	var out orderResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return CreateOrderResult{}, fmt.Errorf("gateway: decode order: %w", err)
	}
	if out.ID == "" {
		return CreateOrderResult{}, errors.New("gateway: order response missing id")
	}

	return CreateOrderResult{
		OrderID:     out.ID,
		AmountMinor: out.Amount,
		Currency:    out.Currency,
		CreatedAt:   time.Unix(out.CreatedAt, 0).UTC(),
	}, nil
}

type paymentResponse struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Method   string `json:"method"`
	VPA      string `json:"vpa"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
	Acquirer struct {
		UTR string `json:"rrn"`
	} `json:"acquirer_data"`
}

func (c *HTTPClient) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	if paymentID == "" {
		return Payment{}, errors.New("gateway: payment id is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return Payment{}, err
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Payment{}, fmt.Errorf("gateway: fetch payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Payment{}, fmt.Errorf("gateway: payment %q not found", paymentID)
	}
	if resp.StatusCode != http.StatusOK {
		return Payment{}, fmt.Errorf("gateway: fetch payment status %d", resp.StatusCode)
	}

	var out paymentResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return Payment{}, fmt.Errorf("gateway: decode payment: %w", err)
	}

	return Payment{
		PaymentID:   out.ID,
		OrderID:     out.OrderID,
		Method:      out.Method,
		VPA:         out.VPA,
		UTR:         out.Acquirer.UTR,
		AmountMinor: out.Amount,
		Status:      out.Status,
	}, nil
}
