package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/identra-io/identra/pkg/config"
	"github.com/identra-io/identra/pkg/iam/iamcontainer"
	"github.com/identra-io/identra/pkg/logx"
	"github.com/identra-io/identra/pkg/notifx"
	"github.com/identra-io/identra/pkg/notifx/notifxconsole"
)

func main() {
	logx.SetLevel(logx.ParseLevel(os.Getenv("LOG_LEVEL")))

	logx.Info("🚀 Starting Identra identity core...")

	cfg := config.Load()

	db, err := connectPostgres(cfg.Database)
	if err != nil {
		logx.WithError(err).Fatal("postgres connection failed")
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	container, err := iamcontainer.New(iamcontainer.Deps{
		DB:     db,
		Redis:  rdb,
		Cfg:    cfg,
		Mailer: buildMailer(cfg.Notifx),
	})
	if err != nil {
		logx.WithError(err).Fatal("container wiring failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Prometheus scrape endpoint.
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		logx.Infof("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.WithError(err).Error("metrics server stopped")
		}
	}()

	// Background maintenance sweeps; blocks until shutdown.
	go func() {
		if err := container.Janitor.Run(ctx); err != nil {
			logx.WithError(err).Error("janitor stopped")
		}
	}()

	<-ctx.Done()
	logx.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logx.WithError(err).Warn("metrics server shutdown failed")
	}

	logx.Info("👋 bye")
}

func connectPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

func buildMailer(cfg config.NotifxConfig) notifx.EmailSender {
	switch cfg.Provider {
	case "ses":
		return buildSESMailer(cfg)
	default:
		logx.Warn("⚠️  Using console email provider (dev mode)")
		return notifxconsole.NewConsoleProvider()
	}
}
