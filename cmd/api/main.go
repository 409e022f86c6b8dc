package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"taptimise/internal/api"
	"taptimise/internal/auth"
	"taptimise/internal/buildinfo"
	"taptimise/internal/config"
	"taptimise/internal/logger"
	"taptimise/internal/store"
	"taptimise/internal/webhooks"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("TAPTIMISE_CONFIG"), "YAML config file")
	flag.Parse()
	_ = godotenv.Load(".env")

	cfg := config.Default()
	if *cfgPath != "" {
		c, err := config.Load(*cfgPath)
		if err != nil {
			logger.L().Error("config_load_error", "path", *cfgPath, "err", err)
			os.Exit(1)
		}
		cfg = c
	}
	if err := config.FromEnv(&cfg); err != nil {
		logger.L().Error("config_env_error", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.L().Error("config_invalid", "err", err)
		os.Exit(1)
	}
	l := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	l.Info("starting", "version", buildinfo.Version, "commit", buildinfo.Commit)

	var st store.Store
	if cfg.Store.DatabaseURL == "" {
		st = store.NewMemory()
		l.Info("store_memory")
	} else {
		pg, err := store.NewPostgres(cfg.Store.DatabaseURL)
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		if os.Getenv("DB_MIGRATE") != "false" {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := pg.EnsureSchema(ctx)
			cancel()
			if err != nil {
				l.Error("schema_error", "err", err)
				os.Exit(1)
			}
		}
		st = pg
		l.Info("store_postgres")
	}

	var broker api.EventBroker
	if cfg.Server.RedisURL != "" {
		rb, err := api.NewRedisBroker(cfg.Server.RedisURL, l)
		if err != nil {
			l.Error("redis_url_error", "err", err)
			os.Exit(1)
		}
		defer rb.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rb.Ping(ctx); err != nil {
			l.Warn("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		cancel()
		broker = rb
	}

	notifier := webhooks.NewNotifier(cfg.Webhooks.MaxAttempts, cfg.Webhooks.Timeout, l)
	s := api.NewServer(cfg, st, broker, webhooks.NewPublisher(notifier, cfg.Webhooks.Secret), l)
	verifier, err := auth.New(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.JWKSURL, cfg.Auth.RoleClaim)
	if err != nil {
		l.Error("auth_config_error", "err", err)
		os.Exit(1)
	}
	s.Auth = verifier

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		l.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server_error", "err", err)
			stop()
		}
	}()
	<-ctx.Done()

	l.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("http_shutdown_error", "err", err)
	}
	if err := s.Shutdown(shutdownCtx); err != nil {
		l.Warn("runs_shutdown_error", "err", err)
	}
}
