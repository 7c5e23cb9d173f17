package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/krishnakrish0052/payment-router/internal/providers/paypal"
	"github.com/krishnakrish0052/payment-router/internal/providers/razorpay"
	"github.com/krishnakrish0052/payment-router/internal/providers/stripe"
	"github.com/krishnakrish0052/payment-router/internal/routing"
	"github.com/krishnakrish0052/payment-router/internal/types"
)

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Routing     RoutingConfig     `yaml:"routing"`
	Registry    RegistryConfig    `yaml:"registry"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	Health      HealthConfig      `yaml:"health"`
	Segments    SegmentsConfig    `yaml:"segments"`
	Clients     ClientsConfig     `yaml:"clients"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds the diagnostics HTTP server configuration
type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RoutingConfig holds selection pipeline configuration
type RoutingConfig struct {
	Strategy            string        `yaml:"strategy"`
	MaxAttempts         int           `yaml:"max_attempts"`
	RecentFailureWindow time.Duration `yaml:"recent_failure_window"`
	SelectionBudget     time.Duration `yaml:"selection_budget"`
	UsageWindow         time.Duration `yaml:"usage_window"`
}

// RegistryConfig holds provider registry configuration
type RegistryConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ReliabilityConfig holds reliability tracker thresholds
type ReliabilityConfig struct {
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	MaxFailureRate         float64       `yaml:"max_failure_rate"`
	Window                 time.Duration `yaml:"window"`
}

// HealthConfig holds health-check runner configuration
type HealthConfig struct {
	Interval        time.Duration `yaml:"interval"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	InterProbeDelay time.Duration `yaml:"inter_probe_delay"`
	WarnLatency     time.Duration `yaml:"warn_latency"`
}

// SegmentsConfig holds the user-segment cutoffs used by user_based rules
type SegmentsConfig struct {
	VIPLifetimeAmount     float64 `yaml:"vip_lifetime_amount"`
	VIPPaymentCount       int     `yaml:"vip_payment_count"`
	RegularLifetimeAmount float64 `yaml:"regular_lifetime_amount"`
	RegularPaymentCount   int     `yaml:"regular_payment_count"`
}

// ClientsConfig holds credentials for the provider API clients
type ClientsConfig struct {
	Stripe   *stripe.Config   `yaml:"stripe"`
	Razorpay *razorpay.Config `yaml:"razorpay"`
	PayPal   *paypal.Config   `yaml:"paypal"`
}

// CatalogConfig seeds the config store with provider configurations and
// routing rules
type CatalogConfig struct {
	Providers []types.ProviderConfig `yaml:"providers"`
	Rules     []types.RoutingRule    `yaml:"rules"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or file path
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	// Set defaults
	config.setDefaults()

	// Load from file if provided
	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	config.loadFromEnv()

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() {
	c.Server = ServerConfig{
		Port:         "8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	c.Routing = RoutingConfig{
		Strategy:            string(routing.DefaultStrategy),
		MaxAttempts:         routing.DefaultMaxAttempts,
		RecentFailureWindow: routing.DefaultRecentFailureWindow,
		SelectionBudget:     routing.DefaultSelectionBudget,
		UsageWindow:         routing.DefaultUsageWindow,
	}

	c.Registry = RegistryConfig{
		RefreshInterval: 5 * time.Minute,
	}

	defaults := routing.DefaultReliabilityThresholds()
	c.Reliability = ReliabilityConfig{
		MaxConsecutiveFailures: defaults.MaxConsecutiveFailures,
		MaxFailureRate:         defaults.MaxFailureRate,
		Window:                 defaults.Window,
	}

	c.Health = HealthConfig{
		Interval:        15 * time.Minute,
		ProbeTimeout:    10 * time.Second,
		InterProbeDelay: time.Second,
		WarnLatency:     2 * time.Second,
	}

	c.Segments = SegmentsConfig{
		VIPLifetimeAmount:     1000,
		VIPPaymentCount:       10,
		RegularLifetimeAmount: 100,
		RegularPaymentCount:   2,
	}

	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

// loadFromFile loads configuration from YAML file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("PAYMENT_ROUTER_PORT"); port != "" {
		c.Server.Port = port
	}

	if strategy := os.Getenv("PAYMENT_ROUTER_STRATEGY"); strategy != "" {
		c.Routing.Strategy = strategy
	}

	if level := os.Getenv("PAYMENT_ROUTER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if format := os.Getenv("PAYMENT_ROUTER_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	// Provider credentials
	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		if c.Clients.Stripe == nil {
			c.Clients.Stripe = &stripe.Config{}
		}
		c.Clients.Stripe.SecretKey = key
	}

	if keyID := os.Getenv("RAZORPAY_KEY_ID"); keyID != "" {
		if c.Clients.Razorpay == nil {
			c.Clients.Razorpay = &razorpay.Config{}
		}
		c.Clients.Razorpay.KeyID = keyID
	}
	if secret := os.Getenv("RAZORPAY_KEY_SECRET"); secret != "" {
		if c.Clients.Razorpay == nil {
			c.Clients.Razorpay = &razorpay.Config{}
		}
		c.Clients.Razorpay.KeySecret = secret
	}

	if clientID := os.Getenv("PAYPAL_CLIENT_ID"); clientID != "" {
		if c.Clients.PayPal == nil {
			c.Clients.PayPal = &paypal.Config{}
		}
		c.Clients.PayPal.ClientID = clientID
	}
	if secret := os.Getenv("PAYPAL_CLIENT_SECRET"); secret != "" {
		if c.Clients.PayPal == nil {
			c.Clients.PayPal = &paypal.Config{}
		}
		c.Clients.PayPal.ClientSecret = secret
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if !routing.ValidStrategy(routing.Strategy(c.Routing.Strategy)) {
		return fmt.Errorf("invalid routing strategy: %s", c.Routing.Strategy)
	}

	if c.Routing.MaxAttempts < 1 {
		return fmt.Errorf("routing max_attempts must be at least 1")
	}

	if c.Reliability.MaxFailureRate <= 0 || c.Reliability.MaxFailureRate > 1 {
		return fmt.Errorf("reliability max_failure_rate must be in (0, 1], got %v", c.Reliability.MaxFailureRate)
	}

	if c.Reliability.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("reliability max_consecutive_failures must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	seen := make(map[string]bool, len(c.Catalog.Providers))
	for _, p := range c.Catalog.Providers {
		if p.ID == "" {
			return fmt.Errorf("catalog provider missing id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate catalog provider id: %s", p.ID)
		}
		seen[p.ID] = true
		if p.Priority < 0 {
			return fmt.Errorf("catalog provider %s has negative priority", p.ID)
		}
	}

	for _, r := range c.Catalog.Rules {
		if r.Type == types.RuleFailureRateBased {
			continue
		}
		if r.ProviderID == "" {
			return fmt.Errorf("catalog rule %s missing provider_id", r.ID)
		}
	}

	return nil
}

// SaveToFile saves the current configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// EnabledClients returns the provider types that have credentials configured
func (c *Config) EnabledClients() []string {
	var enabled []string

	if c.Clients.Stripe != nil && c.Clients.Stripe.SecretKey != "" {
		enabled = append(enabled, "stripe")
	}
	if c.Clients.Razorpay != nil && c.Clients.Razorpay.KeyID != "" {
		enabled = append(enabled, "razorpay")
	}
	if c.Clients.PayPal != nil && c.Clients.PayPal.ClientID != "" {
		enabled = append(enabled, "paypal")
	}

	return enabled
}
