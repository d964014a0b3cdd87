package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telehealth-platform/internal/audit"
	"telehealth-platform/internal/auth"
	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/callsession"
	"telehealth-platform/internal/config"
	"telehealth-platform/internal/httpapi"
	"telehealth-platform/internal/media"
	"telehealth-platform/internal/media/capture"
	"telehealth-platform/internal/peer"
	"telehealth-platform/internal/presence"
	"telehealth-platform/internal/reporting"
	"telehealth-platform/internal/signaling"
	"telehealth-platform/pkg/logger"
	"telehealth-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, utils.DriverPgx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := calls.Migrate(rootCtx, db); err != nil {
		log.Error("schema migration failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	history := calls.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	registry, err := newCallRegistry(cfg.Call, rdb, history, auditSvc, log)
	if err != nil {
		log.Error("call stack init failed", "err", err)
		os.Exit(1)
	}

	go registry.Run(rootCtx, time.Minute, 15*time.Minute)

	h := httpapi.Handlers{
		Auth:    authManager,
		Calls:   registry,
		Reports: reporting.NewService(history),
		Audit:   auditSvc,
		Log:     log,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerPublicRoutes(r, db, rdb)
	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Call actions wait up to the offer timeout; websocket writes set their own deadlines.
		WriteTimeout: cfg.Call.OfferTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "relay", cfg.Call.Relay, "media", cfg.Call.MediaSource)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// End live calls first so peers get call-ended before the relay goes away.
	registry.Close(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// mediaSource is what the registry needs from a capture backend.
type mediaSource interface {
	media.Source
	peer.CodecRegistrar
}

func newMediaSource(kind string, log *slog.Logger) (mediaSource, error) {
	switch kind {
	case "device":
		return capture.NewDeviceSource(log)
	default:
		return media.SyntheticSource{Silence: true}, nil
	}
}

func newCallRegistry(cfg config.CallConfig, rdb *redis.Client, history calls.Repository, auditSvc *audit.Service, log *slog.Logger) (*callsession.Registry, error) {
	src, err := newMediaSource(cfg.MediaSource, log)
	if err != nil {
		return nil, fmt.Errorf("media source %q: %w", cfg.MediaSource, err)
	}

	peers, err := peer.NewPionFactory(peer.Config{
		ICEServers: cfg.ICEServers,
		Codecs:     src,
		Logger:     log.With("component", "peer"),
	})
	if err != nil {
		return nil, err
	}

	var relay signaling.Relay
	switch cfg.Relay {
	case "memory":
		relay = signaling.NewMemoryRelay()
	default:
		relay = signaling.NewRedisRelay(rdb, cfg.RelayPrefix)
	}

	deps := callsession.Deps{
		Relay:    relay,
		Peers:    peers,
		Media:    src,
		Presence: presence.NewRedisLocker(rdb, ""),
		History:  history,
		Audit:    auditSvc,
		Logger:   log.With("component", "callsession"),
	}
	return callsession.NewRegistry(deps, callsession.Config{
		RingTimeout:         cfg.RingTimeout,
		OfferTimeout:        cfg.OfferTimeout,
		OfferResendInterval: cfg.OfferResendInterval,
		OfferResendLimit:    cfg.OfferResendLimit,
		ConnectTimeout:      cfg.ConnectTimeout,
		PresenceTTL:         cfg.PresenceTTL,
	}), nil
}

// healthCheck reports whether postgres and redis answer within a short deadline.
func healthCheck(ctx context.Context, db *sql.DB, rdb *redis.Client) error {
	if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}
