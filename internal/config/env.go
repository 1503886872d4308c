package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"

	"github.com/HefaCom/health-florence-sub002/internal/model"
)

// Config contains all configuration parameters for the application.
// Note: JoeyWebhookSecret may be filled in at startup by PromptForWebhookSecret.
type Config struct {
	Port         string        `envconfig:"PORT" default:"8080"`
	MaxBodyBytes int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	Timeout      time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"5s"`

	GraphQLURL          string `envconfig:"GRAPHQL_URL" required:"true"`
	GraphQLAPIKey       string `envconfig:"GRAPHQL_API_KEY"`
	GraphQLAPIKeyHeader string `envconfig:"GRAPHQL_API_KEY_HEADER" default:"x-api-key"`

	JoeyWebhookSecret string `envconfig:"JOEY_WEBHOOK_SECRET"`
	BalanceSyncToken  string `envconfig:"BALANCE_SYNC_TOKEN"`
	XRPLRPCURL        string `envconfig:"XRPL_RPC_URL" default:"https://s1.ripple.com:51234/"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"20"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// nested fields are looked up by their own tag when the prefixed name is unset
	WalletConnect WalletConnect
}

// WalletConnect holds the identity sent by the wallet-connection client
type WalletConnect struct {
	ProjectID   string `envconfig:"WALLETCONNECT_PROJECT_ID"`
	Name        string `envconfig:"WALLETCONNECT_APP_NAME"`
	Description string `envconfig:"WALLETCONNECT_APP_DESCRIPTION"`
	URL         string `envconfig:"WALLETCONNECT_APP_URL"`
	Icon        string `envconfig:"WALLETCONNECT_APP_ICON"`
	// BridgeURL is the websocket endpoint of the wallet-connection sidecar
	BridgeURL string `envconfig:"WALLETCONNECT_BRIDGE_URL" default:"ws://127.0.0.1:8788/session"`
}

// LoadWalletConnect reads only the wallet-connection settings
func LoadWalletConnect() (WalletConnect, error) {
	var w WalletConnect
	if err := envconfig.Process("", &w); err != nil {
		return WalletConnect{}, fmt.Errorf("failed to process wallet-connect config: %w", err)
	}
	if strings.TrimSpace(w.BridgeURL) == "" {
		return WalletConnect{}, errors.New("WALLETCONNECT_BRIDGE_URL must not be empty")
	}
	return w, nil
}

// Metadata returns the app metadata carried on a connect request
func (w WalletConnect) Metadata() model.SessionMetadata {
	md := model.SessionMetadata{
		Name:        w.Name,
		Description: w.Description,
		URL:         w.URL,
		Icons:       []string{},
	}
	if w.Icon != "" {
		md.Icons = append(md.Icons, w.Icon)
	}
	return md
}

// cfg is the global configuration instance
var cfg *Config

// Load reads configuration from environment variables without touching the global instance.
func Load() (*Config, error) {
	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if strings.TrimSpace(c.GraphQLURL) == "" {
		return nil, errors.New("GRAPHQL_URL must not be empty")
	}
	if c.Timeout <= 0 {
		return nil, errors.New("UPSTREAM_TIMEOUT must be positive")
	}
	c.LogFormat = strings.ToLower(c.LogFormat)
	return c, nil
}

// Init loads configuration from environment variables.
func Init() error {
	c, err := Load()
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// GetPort returns port from configuration
func GetPort() string {
	return Get().Port
}

// GetTimeout returns the per-call upstream deadline
func GetTimeout() time.Duration {
	return Get().Timeout
}

// PromptForWebhookSecret asks for the webhook secret in the terminal when it is not set.
// The secret is read without echoing. It does nothing when the secret is already set or
// stdin is not a terminal, leaving requests to fail with a configuration error.
func PromptForWebhookSecret() error {
	c := Get()
	if c.JoeyWebhookSecret != "" {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	fmt.Fprint(os.Stderr, "Enter Joey webhook secret (empty to skip): ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read webhook secret: %w", err)
	}
	c.JoeyWebhookSecret = strings.TrimSpace(string(raw))
	clear(raw)
	return nil
}
