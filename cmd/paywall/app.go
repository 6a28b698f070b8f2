package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/paywall/internal/db"
	"github.com/nkiryanov/paywall/internal/handlers"
	"github.com/nkiryanov/paywall/internal/logger"
	"github.com/nkiryanov/paywall/internal/metrics"
	"github.com/nkiryanov/paywall/internal/repository/postgres"
	"github.com/nkiryanov/paywall/internal/service/access"
	"github.com/nkiryanov/paywall/internal/service/content"
	"github.com/nkiryanov/paywall/internal/service/magiclink"
	"github.com/nkiryanov/paywall/internal/service/notify"
	"github.com/nkiryanov/paywall/internal/service/payment"
	"github.com/nkiryanov/paywall/internal/service/tokens"
	"github.com/nkiryanov/paywall/internal/service/webhook"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	pool   *pgxpool.Pool
	logger logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Providers are checked before any connection is opened
	provider, err := payment.New(payment.Config{
		Provider: c.PaymentProvider,
		APIKey:   c.PaymentAPIKey,
		APIURL:   c.PaymentAPIURL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating payment provider. Err: %w", err)
	}
	notifier, err := notify.New(notify.Config{
		Provider: c.EmailProvider,
		APIKey:   c.EmailAPIKey,
		APIURL:   c.EmailAPIURL,
		From:     c.EmailFrom,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating notifier. Err: %w", err)
	}
	links, err := magiclink.New(c.BaseURL, c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("error while creating magic link service. Err: %w", err)
	}

	services := handlers.Services{
		Checkout: provider,
		Links:    links,
	}

	if c.ContentBucket != "" {
		store, err := content.New(ctx, content.Config{
			Bucket:    c.ContentBucket,
			Region:    c.ContentRegion,
			Endpoint:  c.ContentEndpoint,
			AccessKey: c.ContentAccessKey,
			SecretKey: c.ContentSecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("error while creating content store. Err: %w", err)
		}
		services.Content = store
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)
	m := metrics.New()

	// Initialize services
	tokenService := tokens.New(tokens.Config{StoreTimeout: c.StoreTimeout}, storage.Token())
	gate := access.NewGate(access.Config{StoreTimeout: c.StoreTimeout}, tokenService, storage.Payment(), logger, m)
	processor, err := webhook.New(
		webhook.Config{Secret: c.PaymentWebhookSecret},
		provider,
		storage,
		tokenService,
		links,
		notifier,
		logger.With("component", "webhook"),
		m,
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating webhook processor. Err: %w", err)
	}

	services.Gate = gate
	services.Resender = access.NewResender(gate, links, notifier, logger, m)
	services.Webhooks = processor

	mux := handlers.NewRouter(
		handlers.Config{BaseURL: c.BaseURL, ArticlePath: c.ArticlePath},
		services,
		logger,
		m,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		pool:       pool,
		logger:     logger,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
