package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/config"
	"tasktrack.dev/internal/httpapi"
	"tasktrack.dev/internal/migrate"
	"tasktrack.dev/internal/obs"
	"tasktrack.dev/internal/ratelimit"
	"tasktrack.dev/internal/store/memory"
	"tasktrack.dev/internal/store/pg"
	"tasktrack.dev/internal/stream"
	"tasktrack.dev/internal/tasks"
	"tasktrack.dev/ops/migrations"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is what both store drivers provide.
type backend interface {
	auth.Store
	tasks.Store
}

func main() {
	// метрики и JSON-логгер
	obs.Init()
	log := obs.Logger()

	cfg, err := config.FromEnv()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if !obs.SetLevel(cfg.Logging.Level) {
		log.WithField("level", cfg.Logging.Level).Warn("unknown log level, keeping info")
	}
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.InitTracing(ctx, obs.TracingConfig{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		log.WithError(err).Fatal("init tracing")
	}

	store, db, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret)
	if err != nil {
		log.WithError(err).Fatal("token issuer")
	}
	authSvc, err := auth.NewService(store, tokens, auth.WithBlockInactive(cfg.Auth.BlockInactive))
	if err != nil {
		log.WithError(err).Fatal("auth service")
	}
	accounts, err := auth.NewAccountService(store)
	if err != nil {
		log.WithError(err).Fatal("account service")
	}
	events := stream.New()
	taskMgr, err := tasks.NewManager(store, tasks.WithPublisher(events))
	if err != nil {
		log.WithError(err).Fatal("task manager")
	}

	limiter, closeLimiter, err := buildLimiter(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("rate limiter")
	}

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(probe, version, authSvc, accounts, taskMgr,
		httpapi.WithDevMode(cfg.IsDevelopment()),
		httpapi.WithLimiter(limiter),
		httpapi.WithTrustedProxy(cfg.HTTP.TrustProxy),
		httpapi.WithEvents(events),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.ReadTimeout(),
		ReadHeaderTimeout: cfg.ReadTimeout(),
		WriteTimeout:      cfg.WriteTimeout(),
		IdleTimeout:       cfg.IdleTimeout(),
	}

	grpcSrv := grpc.NewServer()
	health := httpapi.NewGRPCServer(probe, version)
	health.Register(grpcSrv)
	go health.Run(ctx, 5*time.Second)

	log.WithFields(logrus.Fields{
		"version": version,
		"http":    srv.Addr,
		"grpc":    cfg.GRPC.Addr,
		"store":   cfg.Store.Driver,
	}).Info("starting tasktrack-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http listen")
		}
	}()
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			log.WithError(err).Fatal("grpc listen")
		}
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.WithError(err).Error("grpc serve")
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	grpcSrv.GracefulStop()
	closeLimiter()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracing shutdown")
	}
	if db != nil {
		_ = db.Close()
	}
	log.Info("stopped")
}

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (backend, *sql.DB, error) {
	if cfg.Store.Driver == config.StoreMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil, nil
	}
	st, err := pg.Open(cfg.Store.DSN)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.DB().PingContext(pingCtx); err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	if cfg.Store.MigrateOnStart {
		mgr := migrate.NewManagerFS(st.DB(), migrations.SQL(), nil, migrate.WithLogger(log))
		if err := mgr.Up(ctx); err != nil {
			_ = st.Close()
			return nil, nil, err
		}
	}
	return st, st.DB(), nil
}

// buildLimiter prefers the shared Redis window so replicas agree on budgets.
func buildLimiter(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (ratelimit.Limiter, func(), error) {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return nil, func() {}, nil
	}
	if rl.RedisURL == "" {
		local := ratelimit.NewLocal(rl.Burst, rl.PerSecond)
		go local.Run(ctx, time.Minute)
		return local, func() {}, nil
	}
	opts, err := redis.ParseURL(rl.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// The limiter fails open, so an unreachable Redis is not fatal.
		log.WithError(err).Warn("redis unreachable at startup")
	}
	return ratelimit.NewRedis(client, rl.Burst, time.Second, "tasktrack:rl"), func() { _ = client.Close() }, nil
}
