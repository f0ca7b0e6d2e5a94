package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/claims-service/internal/auth"
	"github.com/Dan9191/claims-service/internal/cache"
	"github.com/Dan9191/claims-service/internal/config"
	"github.com/Dan9191/claims-service/internal/documents"
	"github.com/Dan9191/claims-service/internal/handler"
	"github.com/Dan9191/claims-service/internal/jobs"
	"github.com/Dan9191/claims-service/internal/middleware"
	"github.com/Dan9191/claims-service/internal/notify"
	"github.com/Dan9191/claims-service/internal/repository"
	"github.com/Dan9191/claims-service/internal/repository/mongostore"
	"github.com/Dan9191/claims-service/internal/service"
	"github.com/Dan9191/claims-service/internal/utils/email"
)

// store is what the API needs from a persistence backend
type store interface {
	service.Store
	jobs.ReferenceChecker
	Close() error
}

// closableBus is a notification bus owned by main
type closableBus interface {
	notify.QueueBus
	Close() error
}

type memoryBus struct{ *notify.Hub }

func (memoryBus) Close() error { return nil }

func main() {
	// A missing .env file is fine; the environment may already be set
	_ = godotenv.Load()

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	// Initialize storage
	db, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	bus, err := openBus(cfg.Notify, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	trusted, err := middleware.ParseTrustedProxies(cfg.HTTP.TrustedProxies)
	if err != nil {
		return err
	}
	routerCfg := handler.RouterConfig{
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		AuthRateLimit:  cfg.HTTP.AuthRateLimit,
		AuthRateBurst:  cfg.HTTP.AuthRateBurst,
		TrustedProxies: trusted,
	}
	var (
		gateway *notify.Gateway
		router  http.Handler
	)
	if cfg.SocketOnly {
		svc := service.NewService(db, nil, bus, tokens, logger)
		gateway = notify.NewGateway(bus, svc, cfg.HTTP.CORSOrigins, logger)
		h := handler.NewHandler(svc, handler.Options{Version: cfg.Version}, logger)
		router = handler.NewSocketRouter(h, gateway, routerCfg, logger)
		logger.Info("Running websocket gateway only")
	} else {
		relay, err := documents.NewRelayFromConfig(ctx, cfg.S3)
		if err != nil {
			return err
		}
		if err := relay.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to prepare bucket: %w", err)
		}

		svc := service.NewService(db, relay, bus, tokens, logger)
		if cfg.Redis.URL != "" {
			client, err := cache.NewRedisClient(ctx, cfg.Redis.URL)
			if err != nil {
				return err
			}
			defer client.Close()
			svc.WithUserCache(cache.NewUserCache(client, cfg.Redis.TTL))
			logger.Info("User cache enabled")
		}

		if cfg.Mail.Enabled() {
			mailer := notify.NewDecisionMailer(bus, decisionSender(cfg.Mail, logger), logger)
			go func() {
				if err := mailer.Run(ctx); err != nil {
					logger.Errorf("Decision mailer stopped: %v", err)
				}
			}()
		}

		if cfg.Sweeper.Schedule != "" {
			sweeper := jobs.NewSweeper(relay, db, cfg.Sweeper.Grace, logger)
			scheduler, err := sweeper.Schedule(cfg.Sweeper.Schedule)
			if err != nil {
				return err
			}
			defer scheduler.Stop()
		}

		gateway = notify.NewGateway(bus, svc, cfg.HTTP.CORSOrigins, logger)
		h := handler.NewHandler(svc, handler.Options{
			Version:        cfg.Version,
			DocumentMode:   cfg.S3.DocumentMode,
			MaxUploadBytes: cfg.S3.MaxUploadBytes,
		}, logger)
		router = handler.NewRouter(h, svc, gateway, routerCfg, logger)
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	logger.Infof("Server stopped, %d websocket connections dropped", gateway.Connections())
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.DriverSQLite:
		return repository.Open(ctx, repository.DriverSQLite, cfg.DBConn)
	default:
		return repository.Open(ctx, repository.DriverPostgres, cfg.DBConn)
	}
}

func openBus(cfg config.NotifyConfig, logger *logrus.Logger) (closableBus, error) {
	if cfg.Driver == config.NotifyNATS {
		return notify.ConnectNATS(cfg.NATSURL, logger)
	}
	return memoryBus{notify.NewHub(notify.DefaultBuffer, logger)}, nil
}

// decisionSender prefers SendGrid when an API key is configured
func decisionSender(cfg config.MailConfig, logger *logrus.Logger) notify.DecisionSender {
	if cfg.SendGridAPIKey != "" {
		return email.NewSendGridSender(cfg, logger)
	}
	return email.NewSender(cfg, logger)
}
