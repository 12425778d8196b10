// Package main initializes and starts the couplegram gateway server,
// setting up configuration, logging, the database, the optional Redis
// timeline and NATS event bus, services, handlers and TLS.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/config"
	"github.com/couplegram/couplegram/internal/db"
	"github.com/couplegram/couplegram/internal/events"
	"github.com/couplegram/couplegram/internal/logger"
	"github.com/couplegram/couplegram/internal/middleware"
	"github.com/couplegram/couplegram/internal/repository"
	"github.com/couplegram/couplegram/internal/server/handler/http"
	"github.com/couplegram/couplegram/internal/service"
	"github.com/couplegram/couplegram/internal/timeline"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const (
	cleanInterval   = time.Hour
	orphanRetention = 24 * time.Hour
	shutdownTimeout = 15 * time.Second
)

func main() {
	// Parse flags, config file and environment.
	options, err := config.ParseServer(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	// Remove expired sessions and orphaned uploads.
	db.StartSessionCleaner(ctx, postgresDB, cleanInterval, orphanRetention, zapLogger)

	// Domain events go to NATS when configured.
	var publisher events.Publisher = events.NopPublisher{}
	if options.NatsURL != "" {
		nc, err := nats.Connect(options.NatsURL, nats.Name("couplegram-server"), nats.MaxReconnects(-1))
		if err != nil {
			zapLogger.Fatal("cannot connect to NATS", zap.Error(err))
		}
		defer func() { _ = nc.Drain() }()
		publisher = events.NewNATSPublisher(nc, zapLogger)
		zapLogger.Info("publishing events", zap.String("nats", options.NatsURL))
	}

	// The recent posts timeline lives in Redis when configured.
	var recent service.Timeline
	if options.RedisURL != "" {
		ropts, err := redis.ParseURL(options.RedisURL)
		if err != nil {
			zapLogger.Fatal("invalid redis URL", zap.Error(err))
		}
		rdb := redis.NewClient(ropts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zapLogger.Warn("redis unreachable, timeline falls back to SQL until it recovers", zap.Error(err))
		}
		recent = timeline.NewRedis(rdb)
	}

	// Initialize repositories.
	authRepo := repository.NewPostgresAuthRepository(postgresDB)
	userRepo := repository.NewPostgresUserRepository(postgresDB)
	postRepo := repository.NewPostgresPostRepository(postgresDB)
	saveRepo := repository.NewPostgresSaveRepository(postgresDB)
	fileRepo := repository.NewPostgresFileRepository(postgresDB)

	// Initialize business-logic services.
	authService := service.NewAuthService(authRepo, []byte(options.JWTSecret), service.AuthOptions{})
	userService := service.NewUserService(userRepo, publisher, zapLogger)
	postService := service.NewPostService(postRepo, userService, recent, publisher, zapLogger)
	saveService := service.NewSaveService(saveRepo, userService, publisher, zapLogger)
	fileService := service.NewFileService(fileRepo, options.PublicURL)

	// Metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Build the router with middleware and routes.
	router := http.NewRouter(http.Handlers{
		Auth:     &http.AuthHandler{AuthService: authService},
		Users:    &http.UserHandler{UserService: userService},
		Posts:    &http.PostHandler{PostService: postService},
		Saves:    &http.SaveHandler{SaveService: saveService},
		Files:    &http.FileHandler{FileService: fileService},
		Verifier: authService,
		Metrics:  middleware.NewMetrics(registry),
		Gatherer: registry,
		Ping:     postgresDB.PingContext,
	}, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	// Serve HTTPS when a certificate is configured.
	if options.TLSCert != "" && options.TLSKey != "" {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Address), zap.String("public_url", options.PublicURL))
		err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	} else {
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Address), zap.String("public_url", options.PublicURL))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}
