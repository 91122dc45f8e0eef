package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"product-catalog-client/internal/api"
	"product-catalog-client/internal/config"
	"product-catalog-client/internal/domain"
	"product-catalog-client/internal/gateway"
	"product-catalog-client/internal/retry"
	"product-catalog-client/internal/state"
	"product-catalog-client/internal/store"
	"product-catalog-client/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	defaultAppName      = "ProductCatalogClient"
	healthCheckInterval = 30 * time.Second
)

// fallbackBackend is the opened fallback store plus its optional health and
// shutdown hooks.
type fallbackBackend struct {
	kv     store.KeyValueStore
	health store.HealthChecker
	close  func() error
}

func main() {
	envFile := pflag.StringP("env-file", "e", ".env", "path of the .env file to load")
	addr := pflag.StringP("addr", "a", "", "HTTP listen address, overrides HTTP_SERVER_PORT")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("INFO: %s not loaded (%v), relying on system environment", *envFile, err)
	}
	logger := log.New(os.Stdout, fmt.Sprintf("[%s] ", defaultAppName), log.LstdFlags|log.Lshortfile|log.Lmicroseconds)
	logger.Println("INFO: Starting client...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("FATAL: Error loading configuration: %v", err)
	}
	logger.Printf("INFO: Configuration loaded for APP_ENV: %s, LogLevel: %s", cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Fallback store ---
	backend, err := openFallback(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to open %s fallback store: %v", cfg.Fallback.Driver, err)
	}
	clock := domain.SystemClock{}
	fallback := store.NewFallbackStore(backend.kv, clock, cfg.Fallback.MaxAge, logger)

	// --- Catalog access ---
	rules := domain.NewRules(cfg.Catalog.AllowedCategories)
	remote := gateway.NewHTTPGateway(cfg.Catalog.BaseURL, nil, cfg.Catalog.RequestTimeout, rules, logger)
	cached := gateway.NewCachedGateway(remote, clock, gateway.TTLs{
		List:       cfg.Cache.GatewayListTTL,
		Item:       cfg.Cache.GatewayItemTTL,
		Categories: cfg.Cache.CategoriesTTL,
	}, logger)

	getProducts := usecase.NewGetProducts(cached, fallback, clock, cfg.Cache.ProductsTTL, logger)
	getProduct := usecase.NewGetProductByID(cached, fallback, clock, cfg.Cache.ProductTTL, logger)
	// Already checked by config.Load.
	backoff, _ := retry.Named(cfg.Catalog.RetryBackoff, cfg.Catalog.RetryDelay)
	getProduct.SetRetryBackoff(backoff)
	mutate := usecase.NewMutateProduct(cached, rules, getProducts, getProduct, logger)

	productStore := state.New(getProducts, getProduct, fallback, state.Options{
		Clock:           clock,
		Logger:          logger,
		RefreshInterval: cfg.Cache.RefreshInterval,
		PageSize:        cfg.Cache.StatePageSize,
	})
	productStore.Hydrate(ctx)
	if err := productStore.LoadProducts(ctx, false); err != nil {
		logger.Printf("WARN: Initial product load failed: %v", err)
	} else if msg := productStore.Error(); msg != "" {
		logger.Printf("WARN: Initial product load returned no data: %s", msg)
	}

	// --- Setup & Start HTTP Server ---
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, logger)
	registerHealthCheck(httpRouter, logger, backend.health, productStore)
	api.NewHTTPHandler(productStore, getProduct, mutate, logger).RegisterRoutes(httpRouter)

	listenAddr := ":" + cfg.HttpServer.Port
	if *addr != "" {
		listenAddr = *addr
	}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      httpRouter,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	go func() {
		logger.Printf("INFO: HTTP server listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("FATAL: HTTP server ListenAndServe error: %v", err)
		}
		logger.Println("INFO: HTTP server has stopped.")
	}()

	// --- Setup & Start gRPC health server ---
	grpcServer, healthServer := setupGRPCServer(logger)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		logger.Fatalf("FATAL: Failed to listen for gRPC on port %s: %v", cfg.GrpcServer.Port, err)
	}
	go watchFallbackHealth(ctx, logger, backend.health, healthServer)

	go func() {
		logger.Printf("INFO: gRPC health server listening on port %s", cfg.GrpcServer.Port)
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Fatalf("FATAL: gRPC server Serve error: %v", err)
		}
		logger.Println("INFO: gRPC server has stopped.")
	}()

	<-ctx.Done()
	logger.Println("INFO: Shutdown signal received. Starting graceful shutdown...")
	shutdown(logger, httpServer, grpcServer, healthServer, backend)
	logger.Println("INFO: Client shutdown sequence finished.")
}

func openFallback(ctx context.Context, cfg *config.Config, logger *log.Logger) (fallbackBackend, error) {
	switch cfg.Fallback.Driver {
	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.Postgres.DSN())
		if err != nil {
			return fallbackBackend{}, fmt.Errorf("open database: %w", err)
		}
		pg := store.NewPostgresStore(db)
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		err = retry.Do(pingCtx, retry.Config{MaxAttempts: 3, Backoff: retry.Exponential(500 * time.Millisecond)}, func() error {
			return pg.Ping(pingCtx)
		})
		if err != nil {
			pg.Close()
			return fallbackBackend{}, fmt.Errorf("ping database: %w", err)
		}
		if err := pg.EnsureSchema(pingCtx); err != nil {
			pg.Close()
			return fallbackBackend{}, fmt.Errorf("ensure schema: %w", err)
		}
		logger.Println("INFO: Postgres fallback store ready.")
		return fallbackBackend{kv: pg, health: pg, close: pg.Close}, nil
	case config.DriverRedis:
		rs := store.NewRedisStore(store.RedisConfig{
			Addr:      cfg.Redis.Addr,
			DB:        cfg.Redis.DB,
			Password:  cfg.Redis.Password,
			Namespace: cfg.Redis.Namespace + ":",
		}, logger)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			// Redis may come up later; reads and writes degrade to "no data" meanwhile.
			logger.Printf("WARN: Redis fallback store unreachable at startup: %v", err)
		}
		logger.Printf("INFO: Redis fallback store at %s.", cfg.Redis.Addr)
		return fallbackBackend{kv: rs, health: rs, close: rs.Close}, nil
	case config.DriverFile:
		fs, err := store.OpenFileStore(cfg.Fallback.FilePath)
		if err != nil {
			return fallbackBackend{}, err
		}
		logger.Printf("INFO: File fallback store at %s.", fs.Path())
		return fallbackBackend{kv: fs}, nil
	default:
		logger.Println("INFO: In-memory fallback store; favorites and cart last for this process only.")
		return fallbackBackend{kv: store.NewMemoryStore()}, nil
	}
}

func setupBaseMiddleware(router *chi.Mux, logger *log.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	logger.Println("INFO: Base HTTP middleware registered.")
}

func registerHealthCheck(router *chi.Mux, logger *log.Logger, checker store.HealthChecker, products *state.ProductStore) {
	healthPath := "/api/v1/healthz"
	router.Get(healthPath, func(w http.ResponseWriter, r *http.Request) {
		fallbackStatus := "healthy"
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				fallbackStatus = "unhealthy"
				logger.Printf("WARN: Health check fallback ping failed: %v", err)
			}
		}
		snap := products.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "healthy",
			"serviceName": defaultAppName,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"fallback":    fallbackStatus,
			"products":    len(snap.Products),
			"lastFetch":   snap.LastFetch,
			"loadError":   snap.Loading.Error,
		})
	})
	logger.Printf("INFO: HTTP health check registered at %s", healthPath)
}

func setupGRPCServer(logger *log.Logger) (*grpc.Server, *health.Server) {
	s := grpc.NewServer()

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	logger.Println("INFO: gRPC health check service registered.")

	reflection.Register(s)
	logger.Println("INFO: gRPC reflection service registered.")

	return s, healthServer
}

// watchFallbackHealth mirrors the fallback backend's reachability into the
// gRPC health status until ctx ends. Backends without a Ping always serve.
func watchFallbackHealth(ctx context.Context, logger *log.Logger, checker store.HealthChecker, hs *health.Server) {
	check := func() {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if checker != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := checker.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Printf("WARN: Fallback store ping failed: %v", err)
				status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			}
		}
		hs.SetServingStatus("", status)
	}

	check()
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

func shutdown(logger *log.Logger, httpServer *http.Server, grpcServer *grpc.Server, hs *health.Server, backend fallbackBackend) {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	hs.Shutdown()
	logger.Println("INFO: Attempting to gracefully shut down gRPC server...")
	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	logger.Println("INFO: Attempting to gracefully shut down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("WARN: HTTP server graceful shutdown failed: %v", err)
	} else {
		logger.Println("INFO: HTTP server gracefully shut down.")
	}

	select {
	case <-stoppedGrpc:
		logger.Println("INFO: gRPC server gracefully shut down.")
	case <-shutdownCtx.Done():
		logger.Printf("WARN: gRPC server graceful shutdown timed out: %v", shutdownCtx.Err())
		grpcServer.Stop()
		logger.Println("INFO: gRPC server forced stop.")
	}

	if backend.close != nil {
		if err := backend.close(); err != nil {
			logger.Printf("WARN: Error closing fallback store: %v", err)
		}
	}
	logger.Println("INFO: Graceful shutdown sequence completed.")
}
