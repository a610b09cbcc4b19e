// Command userdir-server serves the Telegram webhook and the directory admin API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/userdir/internal/config"
	"github.com/and161185/userdir/internal/limiter"
	"github.com/and161185/userdir/internal/migrate"
	"github.com/and161185/userdir/internal/model"
	"github.com/and161185/userdir/internal/repository"
	"github.com/and161185/userdir/internal/repository/dynamo"
	"github.com/and161185/userdir/internal/repository/memory"
	"github.com/and161185/userdir/internal/repository/postgres"
	grpcserver "github.com/and161185/userdir/internal/server/grpc"
	"github.com/and161185/userdir/internal/server/webhook"
	"github.com/and161185/userdir/internal/service"
	"github.com/and161185/userdir/internal/telegram"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("backend", cfg.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

// store bundles the directory table with the limiter its backend supports.
type store struct {
	table repository.Table
	lim   limiter.Limiter
	close func()
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*store, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		if cfg.Postgres.RunMigrations {
			if err := migrate.Up(ctx, cfg.Postgres.DSN, log); err != nil {
				return nil, fmt.Errorf("migrate up: %w", err)
			}
		}
		db, err := postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		return &store{
			table: postgres.NewTable(db, cfg.Table, model.AttrUUID),
			lim:   limiter.NewPG(db.Pool, cfg.Limiter.Window, cfg.Limiter.MaxFails, cfg.Limiter.BlockFor),
			close: db.Close,
		}, nil
	case config.BackendDynamoDB:
		client, err := dynamo.NewClient(ctx, dynamo.Options{
			Region:    cfg.Dynamo.Region,
			Endpoint:  cfg.Dynamo.Endpoint,
			AccessKey: cfg.Dynamo.AccessKey,
			SecretKey: cfg.Dynamo.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return &store{table: dynamo.NewTable(client, cfg.Table, model.AttrUUID), lim: limiter.Nop{}, close: func() {}}, nil
	case config.BackendMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return &store{table: memory.NewTable(model.AttrUUID), lim: limiter.Nop{}, close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	dir := service.NewDirectoryService(st.table, logger.Named("directory"))
	bot := telegram.NewClient(cfg.Telegram.APIURL, cfg.Telegram.Token, nil)
	issuer := service.NewAPIKeyIssuer(dir, bot, logger.Named("apikey"))

	hook := webhook.NewHandler(issuer, st.lim, logger.Named("webhook"), webhook.Options{
		Secret:  cfg.Telegram.WebhookSecret,
		Command: cfg.Telegram.Command,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           webhook.NewRouter(hook, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var gs *grpc.Server
	if cfg.GRPCAddr != "" {
		gs, err = newGRPCServer(cfg, dir, logger.Named("grpc"))
		if err != nil {
			return err
		}
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		go func() {
			logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLSCert != ""))
			if err := gs.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if gs != nil {
		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			gs.Stop()
		}
	}
	return nil
}

func newGRPCServer(cfg *config.Config, dir service.DirectoryService, log *zap.Logger) (*grpc.Server, error) {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(log),
			grpcserver.LoggingUnary(log),
			grpcserver.AuthUnary([]byte(cfg.JWTKey)),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)
	grpcserver.RegisterDirectoryServer(s, grpcserver.New(dir))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}
	return s, nil
}
