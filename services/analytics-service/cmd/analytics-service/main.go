package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/fitbook/libs/config"
	"github.com/md-rashed-zaman/fitbook/libs/db"
	"github.com/md-rashed-zaman/fitbook/libs/httpx"
	"github.com/md-rashed-zaman/fitbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/fitbook/libs/otel"
	"github.com/md-rashed-zaman/fitbook/libs/runtime"
	"github.com/md-rashed-zaman/fitbook/services/analytics-service/internal/consumer"
	"github.com/md-rashed-zaman/fitbook/services/analytics-service/internal/handlers"
	"github.com/md-rashed-zaman/fitbook/services/analytics-service/internal/inbox"
	"github.com/md-rashed-zaman/fitbook/services/analytics-service/internal/projections"
	"github.com/md-rashed-zaman/fitbook/services/analytics-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8085")
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
		if err := db.Migrate(ctx, pool, migrations.FS, "analytics_goose_db_version"); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	repo := projections.NewRepository(pool, inbox.NewRepository("analytics_inbox_events"))
	projector := projections.NewProjector(repo, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		c := consumer.New(logger, consumer.Config{
			Brokers:    brokers,
			GroupID:    config.String("KAFKA_GROUP_ID", "analytics-service"),
			Topics:     projections.Topics(),
			MaxRetries: config.Int("CONSUMER_MAX_RETRIES", 5),
		}, projector.Handle)
		go c.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; statistics will not be updated")
	}

	router := mux.NewRouter()
	handlers.New(repo, logger).Routes(router)

	base := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	base.Handle("/api/", router)

	handler := httpx.Chain(base,
		httpx.WithRecovery(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.RunHTTPServer(ctx, logger, srv, 10*time.Second)
}
