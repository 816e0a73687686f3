package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/sudo-init-do/skillhub/internal/alerts"
	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/catalog"
	"github.com/sudo-init-do/skillhub/internal/config"
	"github.com/sudo-init-do/skillhub/internal/db"
	"github.com/sudo-init-do/skillhub/internal/events"
	"github.com/sudo-init-do/skillhub/internal/marketplace"
	"github.com/sudo-init-do/skillhub/internal/messaging"
	"github.com/sudo-init-do/skillhub/internal/server"
	"github.com/sudo-init-do/skillhub/internal/store"
	"github.com/sudo-init-do/skillhub/internal/store/memstore"
	"github.com/sudo-init-do/skillhub/internal/user"
)

// backend is everything the services persist through.
type backend interface {
	marketplace.Store
	user.ProfileStore
	auth.RoleLookup
	catalog.Store
	server.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var backing backend
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on exit")
		backing = memstore.New()
	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool, logger); err != nil {
			return err
		}
		backing = store.New(pool)
	}

	var revocations auth.RevocationList
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		revocations = auth.NewRedisRevocations(rdb)
		logger.Info("token revocation enabled", "redis", cfg.RedisAddr)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer kp.Close()
		publisher = kp
		logger.Info("publishing task events", "topic", cfg.KafkaTopic)
	}

	if cfg.Mail.Provider != "" {
		queue, stopWorker, err := startAlerts(cfg, backing, logger)
		if err != nil {
			return err
		}
		defer stopWorker()
		publisher = events.Fanout{publisher, alerts.NewPublisher(queue)}
		logger.Info("lifecycle emails enabled", "provider", cfg.Mail.Provider)
	}

	hub := messaging.NewHub(logger)
	tokens := auth.NewTokenManager(auth.TokenConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	e := server.New(server.Deps{
		Logger:   logger,
		Resolver: auth.NewResolver(tokens, backing, revocations),
		Tasks: marketplace.NewService(backing,
			marketplace.WithPublisher(publisher),
			marketplace.WithThreadNotifier(hub),
			marketplace.WithLogger(logger),
		),
		Profiles:    user.NewService(backing),
		Categories:  backing,
		Hub:         hub,
		Store:       backing,
		CORSOrigins: cfg.CORSOrigins,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// startAlerts starts the email worker in-process and returns the client the
// publisher enqueues with. The returned func stops both.
func startAlerts(cfg config.Config, dir alerts.Directory, logger *slog.Logger) (*asynq.Client, func(), error) {
	mailer, err := alerts.NewMailer(alerts.MailerConfig{
		Provider:     cfg.Mail.Provider,
		ReplyTo:      cfg.Mail.ReplyTo,
		SMTPHost:     cfg.Mail.SMTPHost,
		SMTPPort:     cfg.Mail.SMTPPort,
		SMTPUsername: cfg.Mail.SMTPUsername,
		SMTPPassword: cfg.Mail.SMTPPassword,
		SMTPFrom:     cfg.Mail.SMTPFrom,
		PlunkAPIKey:  cfg.Mail.PlunkAPIKey,
		PlunkFrom:    cfg.Mail.PlunkFrom,
		PlunkAPIURL:  cfg.Mail.PlunkAPIURL,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	worker := alerts.NewServer(redisOpt, logger)
	if err := worker.Start(alerts.NewProcessor(dir, mailer, logger).Mux()); err != nil {
		return nil, nil, err
	}
	client := asynq.NewClient(redisOpt)
	return client, func() {
		_ = client.Close()
		worker.Shutdown()
	}, nil
}
