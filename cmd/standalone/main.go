package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"casdoorlink/core"
	"casdoorlink/core/providers"
	"casdoorlink/events"
	"casdoorlink/logging"
	"casdoorlink/storage"
	"casdoorlink/storage/gormstore"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	configPath := getEnv("CONFIG_PATH", "config.yaml")
	appConfig, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.NewLogger(appConfig.Log.Level, appConfig.Log.Environment)
	defer logger.Sync()

	if appConfig.Log.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	repo, closeRepo := initRepository(appConfig.DB, logger)
	defer closeRepo.Close()

	publisher, closePublisher := initPublisher(appConfig.Events, logger)
	defer closePublisher.Close()

	opts := []core.GatewayOption{core.WithPublisher(publisher)}
	if key := appConfig.Core.Crypto.EncryptionKey; key != "" {
		crypto, err := core.NewCryptoService(key)
		if err != nil {
			logger.Fatal("Failed to initialize crypto service", zap.Error(err))
		}
		opts = append(opts, core.WithCrypto(crypto))
		logger.Info("Token encryption enabled")
	}

	casdoor := providers.NewCasdoorProvider(&appConfig.Core.Casdoor)
	gateway := core.NewGateway(repo, casdoor, casdoor, &appConfig.Core, logger, opts...)
	commands := core.NewCommands(gateway, core.NewCatalog(appConfig.Core.Locale), logger)
	server := core.NewServer(commands, &appConfig.Core, logger, core.ServerOptions{
		CallbackEnabled: appConfig.CallbackEnabled,
	})

	srv := &http.Server{
		Addr:    ":" + appConfig.Port,
		Handler: server.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Starting casdoorlink server",
			zap.String("port", appConfig.Port),
			zap.String("casdoor", appConfig.Core.Casdoor.BackendServer),
			zap.Bool("callback_enabled", appConfig.CallbackEnabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func initRepository(dbConfig DBConfig, logger *zap.Logger) (core.Repository, io.Closer) {
	switch strings.ToLower(dbConfig.Type) {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(dbConfig.SQLitePath)
		if err != nil {
			logger.Fatal("Failed to initialize SQLite repository", zap.Error(err))
		}
		logger.Info("Using SQLite database", zap.String("path", dbConfig.SQLitePath))
		return repo, repo

	case "mysql":
		if dbConfig.MySQLDSN == "" {
			logger.Fatal("db.mysql_dsn or MYSQL_DSN is required for mysql")
		}
		repo, err := gormstore.New(dbConfig.MySQLDSN)
		if err != nil {
			logger.Fatal("Failed to initialize MySQL repository", zap.Error(err))
		}
		logger.Info("Using MySQL database")
		return repo, repo

	case "mock":
		logger.Info("Using mock repository (in-memory)")
		return storage.NewMockRepository(), nopCloser{}

	default:
		logger.Fatal("Unsupported DB type (supported: sqlite, mysql, mock)", zap.String("type", dbConfig.Type))
		return nil, nil
	}
}

func initPublisher(eventsConfig EventsConfig, logger *zap.Logger) (core.Publisher, io.Closer) {
	if eventsConfig.RabbitMQURL == "" {
		return core.NopPublisher{}, nopCloser{}
	}

	publisher, err := events.NewRabbitPublisher(eventsConfig.RabbitMQURL, eventsConfig.Exchange)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	logger.Info("Publishing events to RabbitMQ", zap.String("exchange", eventsConfig.Exchange))
	return publisher, publisher
}
