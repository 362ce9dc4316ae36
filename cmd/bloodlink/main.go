package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bloodlink/bloodlink/cmd/bloodlink/cli"
	"github.com/bloodlink/bloodlink/internal/app"
	"github.com/bloodlink/bloodlink/internal/audit"
	"github.com/bloodlink/bloodlink/internal/identity"
	"github.com/bloodlink/bloodlink/internal/observability"
	"github.com/bloodlink/bloodlink/internal/orgunit"
	orgunithttp "github.com/bloodlink/bloodlink/internal/orgunit/http"
	"github.com/bloodlink/bloodlink/internal/platform/cache"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		if err := serve(ctx, stop, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	case "token":
		os.Exit(tokenCommand(ctx, cfg, args))
	case "jobs":
		os.Exit(jobsCommand(ctx, cfg, args))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want serve, token or jobs)\n", command)
		os.Exit(2)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobClient, err := jobs.NewClient(cfg.RedisOpt())
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(cfg.RedisOpt())
	defer func() { _ = inspector.Close() }()

	metrics := observability.NewMetrics()
	recorder := audit.NewRecorder(pool)

	authz, err := app.NewAuthz(app.AuthzParams{
		Config:     cfg,
		Logger:     logger,
		Units:      orgunit.NewRepository(pool),
		Principals: identity.NewPGStore(pool),
		Redis:      redisClient,
		Queue:      jobClient,
		Fallback:   recorder,
		Metrics:    metrics,
	})
	if err != nil {
		return err
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics,
		RBACMiddleware: authz.Middleware,
		OrgUnitHandler: orgunithttp.NewHandler(authz.Units, authz.Middleware, logger),
		AuditHandler:   audit.NewHandler(recorder, logger),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Health: map[string]app.HealthCheck{
			"postgres": func(r *http.Request) error { return pool.Ping(r.Context()) },
			"redis":    func(r *http.Request) error { return redisClient.Ping(r.Context()).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}

func tokenCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: bloodlink token revoke --token <jwt> [--ttl 24h] [--json]")
		return 2
	}
	verifier, err := identity.NewJWTVerifier(identity.VerifierConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   cfg.JWTLeeway,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		return 1
	}

	switch args[0] {
	case "revoke":
		fs := flag.NewFlagSet("token revoke", flag.ContinueOnError)
		token := fs.String("token", "", "bearer token to revoke")
		ttl := fs.Duration("ttl", 24*time.Hour, "revocation lifetime when the token expiry is unknown")
		jsonOut := fs.Bool("json", false, "print a JSON summary")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			fmt.Fprintf(os.Stderr, "token: %v\n", err)
			return 1
		}
		defer closeQuietly(redisClient)
		tokens, err := cli.NewTokenCLI(verifier, identity.NewRedisRevocations(redisClient))
		if err != nil {
			fmt.Fprintf(os.Stderr, "token: %v\n", err)
			return 1
		}
		return tokens.RevokeCommand(ctx, cli.RevokeOptions{Token: *token, TTL: *ttl, JSONOutput: *jsonOut})
	default:
		fmt.Fprintf(os.Stderr, "token: unknown subcommand %q\n", args[0])
		return 2
	}
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: bloodlink jobs purge|stats [flags]")
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisOpt())
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer closeQuietly(jobsCLI)

	switch args[0] {
	case "purge":
		fs := flag.NewFlagSet("jobs purge", flag.ContinueOnError)
		retention := fs.Duration("retention", cfg.AuditRetention, "delete audit entries older than this")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		info, err := jobsCLI.TriggerPurge(ctx, *retention)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs purge: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "enqueued %s on queue %s\n", info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown subcommand %q\n", args[0])
		return 2
	}
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
