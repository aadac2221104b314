package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/example/gl-core/internal/config"
	"github.com/example/gl-core/internal/ledger"
	"github.com/example/gl-core/internal/ops"
	"github.com/example/gl-core/internal/rpc"
	"github.com/example/gl-core/internal/store"
	"github.com/example/gl-core/pkg/audit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("ledgerd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Dialect(), cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	chain := audit.NewChainLogger(io.Discard)
	if cfg.AuditSink != "" {
		resumed, f, err := audit.OpenFile(cfg.AuditSink)
		if err != nil {
			return err
		}
		defer f.Close()
		chain = resumed
		logger.Info("audit chain resumed", "sink", cfg.AuditSink, "entries", chain.Len())
	} else {
		logger.Warn("AUDIT_SINK not set, audit records are not persisted")
	}

	opts := cfg.LedgerOptions()
	opts.Logger = logger
	opts.Auditor = chain
	svc := ledger.NewService(st, opts)

	checks := map[string]ops.Pinger{"database": st}
	interceptors := []grpc.UnaryServerInterceptor{rpc.LoggingInterceptor(logger)}
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()

		capacity, perSecond := cfg.RateLimit()
		bucket := &rpc.TokenBucket{Redis: rdb, Prefix: "gl:ratelimit", Capacity: capacity, RefillRate: perSecond}
		interceptors = append(interceptors, rpc.RateLimitInterceptor(bucket, logger))
		checks["redis"] = ops.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	serverOpts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(4 * 1024 * 1024),
		grpc.MaxSendMsgSize(16 * 1024 * 1024),
		grpc.ChainUnaryInterceptor(interceptors...),
	}
	tlsFiles := rpc.TLSFiles{CertFile: cfg.TLSCertFile, KeyFile: cfg.TLSKeyFile, CAFile: cfg.TLSClientCAFile}
	if tlsFiles.Enabled() {
		creds, err := rpc.ServerCredentials(tlsFiles)
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	} else {
		logger.Warn("gRPC listener is not using TLS")
	}

	grpcServer := grpc.NewServer(serverOpts...)
	rpc.NewServer(svc, logger).Register(grpcServer)

	// Enable reflection for debugging
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting ledger gRPC server",
			"addr", lis.Addr().String(),
			"env", cfg.Environment,
			"dialect", string(cfg.Dialect()),
			"fiscal_year_start", cfg.FiscalYearStart,
			"tls", tlsFiles.Enabled(),
			"rate_limit", cfg.RedisURL != "",
		)
		return grpcServer.Serve(lis)
	})

	var opsServer *http.Server
	if cfg.OpsAddr != "" {
		opsServer = &http.Server{
			Addr:              cfg.OpsAddr,
			Handler:           ops.NewRouter(ops.Dependencies{Logger: logger, Checks: checks, AuditSink: cfg.AuditSink}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting ops HTTP server", "addr", cfg.OpsAddr)
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		if opsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = opsServer.Shutdown(shutdownCtx)
		}
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}
