package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/roomcoord/config"
	"github.com/cwrk-planet/roomcoord/internal/coordinator"
	"github.com/cwrk-planet/roomcoord/internal/memory"
	"github.com/cwrk-planet/roomcoord/internal/postgres"
	"github.com/cwrk-planet/roomcoord/internal/rooms"
	grpcx "github.com/cwrk-planet/roomcoord/internal/transport/grpc"
	httpx "github.com/cwrk-planet/roomcoord/internal/transport/http"
	"github.com/cwrk-planet/roomcoord/internal/transport/ws"
	"github.com/cwrk-planet/roomcoord/pkg/logger"

	"google.golang.org/grpc"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting roomcoord",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	// --- storage ---
	ctx := context.Background()
	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeRepo()

	// --- engine: WS hub доставляет события ---
	hub := ws.NewHub()
	engine := coordinator.New(repo, hub, coordinator.Config{
		DefaultUserLimit: cfg.Rooms.DefaultUserLimit,
		MaxUserLimit:     cfg.Rooms.MaxUserLimit,
		MaxMessageLen:    cfg.Rooms.MaxMessageLen,
		ClaimRetention:   cfg.ClaimRetention(),
	})
	defer engine.Close()

	wsServer := ws.NewServer(hub, engine, ws.Options{
		PingEvery:      cfg.PingEvery(),
		SendBuffer:     cfg.WS.SendBuffer,
		ReadLimit:      cfg.WS.ReadLimit,
		AllowedOrigins: cfg.WS.AllowedOrigins,
		RateBurst:      cfg.WS.RateBurst,
		RateEvery:      cfg.RateEvery(),
	})

	// --- HTTP ---
	router := httpx.NewRouter(httpx.NewHandler(engine), wsServer.HandleWS, httpx.RouterConfig{
		AllowedOrigins: cfg.WS.AllowedOrigins,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- gRPC ---
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor()),
	)
	grpcx.Register(grpcServer, grpcx.NewServer(engine))

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	grpcServer.GracefulStop()
	// hijacked ws-соединения Shutdown не ждёт
	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}

func openRepository(ctx context.Context, cfg *config.Config) (rooms.Repository, func(), error) {
	if cfg.Storage.Driver != config.DriverPostgres {
		return memory.NewRoomRepository(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:               cfg.Postgres.DSN,
		MaxConns:          cfg.Postgres.MaxConns,
		MinConns:          cfg.Postgres.MinConns,
		MaxConnLifetime:   cfg.Postgres.Lifetime(),
		MaxConnIdleTime:   cfg.Postgres.IdleTime(),
		HealthCheckPeriod: cfg.Postgres.HealthPeriod(),
		ApplicationName:   cfg.Postgres.ApplicationName,
	})
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewRoomRepository(pool), pool.Close, nil
}
