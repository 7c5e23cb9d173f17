package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krishnakrish0052/payment-router/internal/providers"
)

const (
	liveBaseURL    = "https://api-m.paypal.com"
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"
)

// Config holds PayPal-specific configuration.
type Config struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	BaseURL      string        `yaml:"base_url"`
	Sandbox      bool          `yaml:"sandbox"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Client implements the provider capability for PayPal.
type Client struct {
	config *Config
	http   *http.Client
	logger *logrus.Logger
}

// NewClient creates a PayPal client.
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config.BaseURL == "" {
		if config.Sandbox {
			config.BaseURL = sandboxBaseURL
		} else {
			config.BaseURL = liveBaseURL
		}
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

func (c *Client) Type() string { return "paypal" }

// Connect treats any HTTP response as proof the API is reachable.
func (c *Client) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1", nil)
	if err != nil {
		return fmt.Errorf("failed to build paypal request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("paypal unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// Authenticate runs the client-credentials grant and discards the token.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.token(ctx)
	return err
}

func (c *Client) token(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("failed to build paypal request: %w", err)
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal token call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal rejected credentials: status %d", resp.StatusCode)
	}

	var grant struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return "", fmt.Errorf("failed to decode paypal token response: %w", err)
	}
	if grant.AccessToken == "" {
		return "", fmt.Errorf("paypal returned an empty access token")
	}
	return grant.AccessToken, nil
}

// CreateOrder opens a checkout order using a fresh client-credentials token.
func (c *Client) CreateOrder(ctx context.Context, order providers.OrderRequest) (*providers.OrderResult, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": order.Reference,
				"amount": map[string]string{
					"currency_code": order.Currency,
					"value":         order.Amount.StringFixed(2),
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode paypal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v2/checkout/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build paypal request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal order call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("paypal order rejected: status %d", resp.StatusCode)
	}

	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode paypal response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"order_id": created.ID,
		"status":   created.Status,
	}).Debug("PayPal order created")
	return &providers.OrderResult{ProviderOrderID: created.ID, Status: created.Status}, nil
}
