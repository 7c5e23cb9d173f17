package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/krishnakrish0052/payment-router/internal/providers"
)

const defaultBaseURL = "https://api.razorpay.com"

// paiseFactor converts rupee amounts to the paise the API expects.
var paiseFactor = decimal.NewFromInt(100)

// Config holds Razorpay-specific configuration.
type Config struct {
	KeyID     string        `yaml:"key_id"`
	KeySecret string        `yaml:"key_secret"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Client implements the provider capability for Razorpay.
type Client struct {
	config *Config
	http   *http.Client
	logger *logrus.Logger
}

// NewClient creates a Razorpay client.
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *Client) Type() string { return "razorpay" }

// Connect treats any HTTP response as proof the API is reachable.
func (c *Client) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1", nil)
	if err != nil {
		return fmt.Errorf("failed to build razorpay request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// Authenticate lists a single payment, the cheapest authenticated call.
func (c *Client) Authenticate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/payments?count=1", nil)
	if err != nil {
		return fmt.Errorf("failed to build razorpay request: %w", err)
	}
	req.SetBasicAuth(c.config.KeyID, c.config.KeySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay payments call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("razorpay rejected credentials: status %d", resp.StatusCode)
	}
	return nil
}

// CreateOrder opens an order. Amounts are converted to paise.
func (c *Client) CreateOrder(ctx context.Context, order providers.OrderRequest) (*providers.OrderResult, error) {
	payload := map[string]interface{}{
		"amount":   order.Amount.Mul(paiseFactor).Round(0).IntPart(),
		"currency": order.Currency,
		"receipt":  order.Reference,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode razorpay order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build razorpay request: %w", err)
	}
	req.SetBasicAuth(c.config.KeyID, c.config.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("razorpay order call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("razorpay order rejected: status %d", resp.StatusCode)
	}

	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode razorpay response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"order_id": created.ID,
		"status":   created.Status,
	}).Debug("Razorpay order created")
	return &providers.OrderResult{ProviderOrderID: created.ID, Status: created.Status}, nil
}
