package main // Entry point package

import (
	"context"
	"errors"
	"log" // used only before the zap logger exists
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/iliyamo/training-management/internal/config"
	"github.com/iliyamo/training-management/internal/database"
	"github.com/iliyamo/training-management/internal/handler"
	"github.com/iliyamo/training-management/internal/keycloak"
	"github.com/iliyamo/training-management/internal/middleware"
	"github.com/iliyamo/training-management/internal/notify"
	"github.com/iliyamo/training-management/internal/queue"
	"github.com/iliyamo/training-management/internal/repository"
	"github.com/iliyamo/training-management/internal/router"
	"github.com/iliyamo/training-management/internal/service"
)

func main() {
	cfg := config.Load() // Load environment config
	logger, err := config.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }() // flush buffered log entries

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	// ---- Storage ----
	mongoClient, err := database.Open(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer disconnect(mongoClient, logger)
	db := mongoClient.Database(cfg.MongoDBName)
	if err := database.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		logger.Warn("redis unavailable: rate limiting, response cache and token cache disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	users := repository.NewUserRepo(db)           // users collection
	batches := repository.NewBatchRepo(db)        // batches collection
	members := repository.NewStudentBatchRepo(db) // student_batches collection

	// ---- Keycloak ----
	httpClient := &http.Client{Timeout: cfg.Keycloak.Timeout}
	kc := keycloak.New(keycloak.Config{
		BaseURL:      cfg.Keycloak.BaseURL,
		Realm:        cfg.Keycloak.Realm,
		ClientID:     cfg.Keycloak.ClientID,
		ClientSecret: cfg.Keycloak.ClientSecret,
	}, httpClient, keycloak.NewRedisTokenCache(rdb, logger), logger.Named("keycloak"))
	verifier := keycloak.NewVerifier(kc)

	// ---- Email ----
	var mail notify.Sender
	var consumerDone chan struct{}
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if cfg.Email.Provider == "queue" {
		pub := queue.NewPublisher(cfg.RabbitMQURL, logger.Named("queue"))
		defer func() { _ = pub.Close() }()
		mail = pub

		consumerDone = make(chan struct{})
		consumer := queue.NewConsumer(cfg.RabbitMQURL, deliverySender(cfg.Email.Delivery, cfg.Email, logger), logger.Named("queue"))
		go func() {
			defer close(consumerDone)
			_ = consumer.Run(consumerCtx)
		}()
	} else {
		mail = deliverySender(cfg.Email.Provider, cfg.Email, logger)
	}

	// ---- Services ----
	passwords := service.PasswordPolicy{}
	if cfg.TempPasswordMode == "fixed" {
		passwords.Fixed = cfg.TempPasswordFixed
	}
	enrollment := service.NewEnrollmentService(users, batches, members, kc, mail, passwords, cfg.PendingLease, logger.Named("enrollment"))
	auth := service.NewAuthService(users, kc, verifier, logger.Named("auth"))
	students := service.NewStudentService(users, batches, members)
	batchSvc := service.NewBatchService(users, batches, members, logger.Named("batch"))
	admin := service.NewAdminService(users, batches, members)

	// ---- HTTP ----
	e := echo.New()     // Create Echo instance
	e.HideBanner = true // startup is logged through zap
	e.HTTPErrorHandler = handler.ErrorHandler(logger)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger.Named("http")))

	router.Register(e, router.Handlers{
		Auth:     handler.NewAuthHandler(auth),
		Students: handler.NewStudentHandler(enrollment, students),
		Batches:  handler.NewBatchHandler(batchSvc),
		Admin:    handler.NewAdminHandler(admin),
		Health:   handler.Health(healthChecks(mongoClient, rdb)),
	}, router.Deps{
		Verifier:  verifier,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Log:       logger,
	})

	addr := ":" + cfg.Port // Address string with port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	// Shutdown order: HTTP, consumer, broker, Redis, Mongo.  The deferred
	// closers above run in reverse registration order after this.
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	stopConsumer()
	if consumerDone != nil {
		select {
		case <-consumerDone:
		case <-shutdownCtx.Done():
			logger.Warn("notification consumer did not stop in time")
		}
	}
	return nil
}

// deliverySender builds the sender that actually hands mail off: a log line
// or an SMTP relay.
func deliverySender(kind string, cfg config.EmailConfig, logger *zap.Logger) notify.Sender {
	if kind == "smtp" {
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
		}, logger.Named("smtp"))
	}
	return notify.NewLogSender(logger.Named("mail"))
}

func healthChecks(mc *mongo.Client, rdb *redis.Client) map[string]handler.Check {
	checks := map[string]handler.Check{
		"mongo": func(ctx context.Context) error { return mc.Ping(ctx, readpref.Primary()) },
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

func disconnect(mc *mongo.Client, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.Disconnect(ctx); err != nil {
		logger.Warn("mongo disconnect", zap.Error(err))
	}
}
