package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"food-ordering-api/catalog"
	"food-ordering-api/config"
	"food-ordering-api/events"
	"food-ordering-api/handlers"
	"food-ordering-api/identity"
	"food-ordering-api/logging"
	"food-ordering-api/metrics"
	"food-ordering-api/orders"
	"food-ordering-api/routes"
	"food-ordering-api/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(os.Stdout, logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(log)

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.OpenDB(cfg.DSN)
	if err != nil {
		return err
	}
	config.DB = db

	// Blob backend
	var blobs storage.Store
	switch cfg.BlobBackend {
	case "gridfs":
		g, err := storage.ConnectGridFS(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := g.Close(closeCtx); err != nil {
				log.Warn("close gridfs", "error", err)
			}
		}()
		blobs = g
	default:
		d, err := storage.NewDiskStore(cfg.UploadDir)
		if err != nil {
			return err
		}
		blobs = d
	}

	// Order events
	var publisher events.Publisher = events.LogPublisher{Log: log}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer func() {
			if err := kp.Close(); err != nil {
				log.Warn("close kafka writer", "error", err)
			}
		}()
		publisher = kp
		log.Info("publishing order events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Services
	var idOpts []identity.Option
	if cfg.DemoAccounts != "" {
		accounts, err := identity.ParseDemoAccounts(cfg.DemoAccounts)
		if err != nil {
			return err
		}
		seeded, err := identity.NewSeededAccounts(accounts)
		if err != nil {
			return err
		}
		idOpts = append(idOpts, identity.WithFallback(seeded))
	}
	idOpts = append(idOpts, identity.WithMetrics(m), identity.WithLogger(log))
	tokens := identity.NewTokenCodec(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpire)
	idSvc := identity.NewService(db, tokens, idOpts...)

	if cfg.AdminEmail != "" {
		if err := idSvc.EnsureAdmin(ctx, "Administrator", cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return err
		}
	}

	catSvc := catalog.NewService(db, blobs, catalog.Options{
		RequireApproval: cfg.RequireApproval,
		Publisher:       publisher,
		Metrics:         m,
		Log:             log,
	})
	ordSvc := orders.NewService(db, orders.Options{
		RequireApproval: cfg.RequireApproval,
		Publisher:       publisher,
		Metrics:         m,
		Log:             log,
	})

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(log), m.Middleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", handlers.IdempotencyHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	h := handlers.New(idSvc, catSvc, ordSvc, blobs, log)
	routes.SetupRoutes(r, h, idSvc)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr, "require_approval", cfg.RequireApproval, "blobs", cfg.BlobBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
