package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/fitbook/libs/config"
	"github.com/md-rashed-zaman/fitbook/libs/db"
	"github.com/md-rashed-zaman/fitbook/libs/httpx"
	"github.com/md-rashed-zaman/fitbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/fitbook/libs/otel"
	"github.com/md-rashed-zaman/fitbook/libs/outbox"
	"github.com/md-rashed-zaman/fitbook/libs/runtime"
	"github.com/md-rashed-zaman/fitbook/services/auth-service/internal/handlers"
	"github.com/md-rashed-zaman/fitbook/services/auth-service/internal/sessions"
	"github.com/md-rashed-zaman/fitbook/services/auth-service/internal/storage"
	"github.com/md-rashed-zaman/fitbook/services/auth-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		if err := db.Migrate(ctx, pool, migrations.FS, "auth_goose_db_version"); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	signer, err := buildSigner()
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
		panic(err)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository(storage.OutboxTable)
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	authHandler := handlers.NewAuthHandler(
		signer,
		storage.NewUserRepository(pool, outboxRepo),
		sessions.NewRefreshRepository(pool),
		handlers.Config{
			AccessTTL:  config.Minutes("ACCESS_TTL_MINUTES", time.Hour),
			RefreshTTL: time.Duration(config.Int("REFRESH_TTL_HOURS", 720)) * time.Hour,
		},
		logger,
	)

	if email := config.String("ADMIN_EMAIL", ""); email != "" {
		password, err := config.RequiredString("ADMIN_PASSWORD")
		if err != nil {
			panic(err)
		}
		if err := authHandler.EnsureAdmin(ctx, email, password); err != nil {
			logger.Error("bootstrap admin failed", "err", err)
			panic(err)
		}
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	authHandler.Routes(mux)

	handler := httpx.Chain(mux,
		httpx.WithRecovery(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
	)
	handler = otelhttp.NewHandler(handler, "auth")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.RunHTTPServer(ctx, logger, srv, 10*time.Second)
}

// buildSigner picks RS256 when PEM keys are configured and HS256 otherwise.
// JWT_PRIVATE_KEYS_PEM may hold several keys; JWT_ACTIVE_KID selects the
// signing one.
func buildSigner() (handlers.TokenSigner, error) {
	pemKeys := config.String("JWT_PRIVATE_KEYS_PEM", config.String("JWT_PRIVATE_KEY_PEM", ""))
	if pemKeys != "" {
		keys, err := handlers.ParseRSAKeySet([]byte(pemKeys))
		if err != nil {
			return nil, err
		}
		signer, err := handlers.NewRSASigner(keys, config.String("JWT_ACTIVE_KID", ""))
		if err != nil {
			return nil, err
		}
		return signer, nil
	}
	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	return handlers.NewHS256Signer(secret), nil
}
