package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/paywall/internal/apperrors"
	"github.com/nkiryanov/paywall/internal/handlers"
	"github.com/nkiryanov/paywall/internal/logger"
	"github.com/nkiryanov/paywall/internal/service/notify"
	"github.com/nkiryanov/paywall/internal/service/payment"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultBaseURL         = "http://localhost:8000"
	defaultPaymentProvider = payment.ProviderStripe
	defaultEmailProvider   = notify.ProviderSendGrid
	defaultContentRegion   = "us-east-1"
	defaultStoreTimeout    = 3 * time.Second
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the paywall service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Magic link signing key is derived from it
	SecretKey string

	// Environment
	Environment string

	// Public site url, magic links and checkout redirects point there
	BaseURL string

	// Article page path with "{slug}" placeholder
	ArticlePath string

	PaymentProvider      string
	PaymentAPIKey        string
	PaymentAPIURL        string
	PaymentWebhookSecret string

	EmailProvider string
	EmailAPIKey   string
	EmailAPIURL   string
	EmailFrom     string

	// Premium content is served only if bucket is set
	ContentBucket    string
	ContentRegion    string
	ContentEndpoint  string
	ContentAccessKey string
	ContentSecretKey string

	// Upper bound for every store call
	StoreTimeout time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Environment:     defaultEnvironment,
		BaseURL:         defaultBaseURL,
		ArticlePath:     handlers.DefaultArticlePath,
		PaymentProvider: defaultPaymentProvider,
		EmailProvider:   defaultEmailProvider,
		ContentRegion:   defaultContentRegion,
		StoreTimeout:    defaultStoreTimeout,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":            setString(&c.ListenAddr),
		"DATABASE_URI":           setString(&c.DatabaseDSN),
		"SECRET_KEY":             setString(&c.SecretKey),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"ENVIRONMENT":            setString(&c.Environment),
		"BASE_URL":               setString(&c.BaseURL),
		"ARTICLE_PATH":           setString(&c.ArticlePath),
		"PAYMENT_PROVIDER":       setString(&c.PaymentProvider),
		"PAYMENT_API_KEY":        setString(&c.PaymentAPIKey),
		"PAYMENT_API_URL":        setString(&c.PaymentAPIURL),
		"PAYMENT_WEBHOOK_SECRET": setString(&c.PaymentWebhookSecret),
		"EMAIL_PROVIDER":         setString(&c.EmailProvider),
		"EMAIL_API_KEY":          setString(&c.EmailAPIKey),
		"EMAIL_API_URL":          setString(&c.EmailAPIURL),
		"EMAIL_FROM":             setString(&c.EmailFrom),
		"CONTENT_S3_BUCKET":      setString(&c.ContentBucket),
		"CONTENT_S3_REGION":      setString(&c.ContentRegion),
		"CONTENT_S3_ENDPOINT":    setString(&c.ContentEndpoint),
		"CONTENT_S3_ACCESS_KEY":  setString(&c.ContentAccessKey),
		"CONTENT_S3_SECRET_KEY":  setString(&c.ContentSecretKey),
		"STORE_TIMEOUT":          setDuration(&c.StoreTimeout),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("paywall", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.BaseURL, "base-url", "b", c.BaseURL, "Public site url")
	fs.StringVar(&c.ArticlePath, "article-path", c.ArticlePath, "Article page path with {slug} placeholder")
	fs.StringVar(&c.PaymentProvider, "payment-provider", c.PaymentProvider, "Payment provider (stripe)")
	fs.StringVar(&c.EmailProvider, "email-provider", c.EmailProvider, "Email provider (sendgrid, resend)")
	fs.StringVar(&c.EmailFrom, "email-from", c.EmailFrom, "Sender of magic link emails")
	fs.StringVar(&c.ContentBucket, "content-bucket", c.ContentBucket, "S3 bucket with premium content")
	fs.DurationVar(&c.StoreTimeout, "store-timeout", c.StoreTimeout, "Upper bound for every store call")

	return fs.Parse(args)
}

// Validate reports every missing required value at once
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"SECRET_KEY", c.SecretKey},
		{"DATABASE_URI", c.DatabaseDSN},
		{"PAYMENT_API_KEY", c.PaymentAPIKey},
		{"PAYMENT_WEBHOOK_SECRET", c.PaymentWebhookSecret},
		{"EMAIL_API_KEY", c.EmailAPIKey},
		{"EMAIL_FROM", c.EmailFrom},
	}

	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", apperrors.ErrConfiguration, strings.Join(missing, ", "))
	}

	if !strings.Contains(c.ArticlePath, "{slug}") {
		return fmt.Errorf("%w: ARTICLE_PATH has no {slug} placeholder", apperrors.ErrConfiguration)
	}

	return nil
}
