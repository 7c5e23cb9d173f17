package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/krishnakrish0052/payment-router/internal/providers"
)

const defaultBaseURL = "https://api.stripe.com"

// minorUnitFactor converts major currency units to the minor units the API
// expects. Zero-decimal currencies are not handled by the probe path.
var minorUnitFactor = decimal.NewFromInt(100)

// Config holds Stripe-specific configuration.
type Config struct {
	SecretKey string        `yaml:"secret_key"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Client implements the provider capability for Stripe.
type Client struct {
	config *Config
	http   *http.Client
	logger *logrus.Logger
}

// NewClient creates a Stripe client.
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

func (c *Client) Type() string { return "stripe" }

// Connect treats any HTTP response, including 401, as proof the API is
// reachable.
func (c *Client) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1", nil)
	if err != nil {
		return fmt.Errorf("failed to build stripe request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stripe unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// Authenticate retrieves the account balance, the cheapest call that
// exercises the secret key.
func (c *Client) Authenticate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/balance", nil)
	if err != nil {
		return fmt.Errorf("failed to build stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.SecretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stripe balance call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stripe rejected credentials: status %d", resp.StatusCode)
	}
	return nil
}

// CreateOrder opens a payment intent. Amounts are converted to the minor
// currency unit Stripe expects.
func (c *Client) CreateOrder(ctx context.Context, order providers.OrderRequest) (*providers.OrderResult, error) {
	form := url.Values{}
	form.Set("amount", order.Amount.Mul(minorUnitFactor).Round(0).String())
	form.Set("currency", strings.ToLower(order.Currency))
	form.Set("metadata[reference]", order.Reference)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe payment intent call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stripe payment intent rejected: status %d", resp.StatusCode)
	}

	var intent struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("failed to decode stripe response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"intent_id": intent.ID,
		"status":    intent.Status,
	}).Debug("Stripe payment intent created")
	return &providers.OrderResult{ProviderOrderID: intent.ID, Status: intent.Status}, nil
}
