package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/club-manager/internal/auth"
	"github.com/iliyamo/club-manager/internal/config"
	"github.com/iliyamo/club-manager/internal/database"
	"github.com/iliyamo/club-manager/internal/handler"
	"github.com/iliyamo/club-manager/internal/logger"
	"github.com/iliyamo/club-manager/internal/middleware"
	"github.com/iliyamo/club-manager/internal/queue"
	"github.com/iliyamo/club-manager/internal/repository"
	"github.com/iliyamo/club-manager/internal/router"
	"github.com/iliyamo/club-manager/internal/security"
	"github.com/iliyamo/club-manager/internal/service"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.ValidateSecret(cfg.SigningSecret, cfg.IsProduction()); err != nil {
		log.Warn("signing secret check failed; auth requests will be rejected while it is missing", zap.Error(err))
	}

	db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		log.Warn("redis unavailable; edge rate limiting disabled", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	var attempts auth.AttemptStore = repository.NewAttemptRepo(db)
	if cfg.ThrottleBackend == config.ThrottleRedis {
		if rdb == nil {
			log.Fatal("THROTTLE_BACKEND=redis but redis is unavailable")
		}
		attempts = repository.NewRedisAttemptRepo(rdb, "login")
	}
	log.Info("login throttle configured",
		zap.String("backend", cfg.ThrottleBackend),
		zap.Int("max_attempts", cfg.Throttle.MaxAttempts),
		zap.Duration("window", cfg.Throttle.Window),
		zap.Duration("lockout", cfg.Throttle.Lockout),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var auditor auth.Auditor
	var pub *service.AuditPublisher
	pubDone := make(chan struct{})
	if cfg.RabbitURL != "" {
		pub = service.NewAuditPublisher(cfg.RabbitURL, 1024, log.Named("audit"))
		// Not bound to ctx: it is closed after the HTTP server drains so
		// events from in-flight requests are flushed.
		go func() {
			pub.Run(context.Background())
			close(pubDone)
		}()
		auditor = pub

		consumer := &queue.AuditConsumer{URL: cfg.RabbitURL, Dir: cfg.AuditLogDir, Log: log.Named("audit-consumer")}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	users := repository.NewUserRepo(db)
	tokens := security.NewTokenService(cfg.SigningSecret, security.SystemClock{}, cfg.AccessTTL, cfg.RefreshTTL)
	gate := auth.NewGate(tokens, users, cfg.ServiceToken)
	svc := auth.NewService(auth.Deps{
		Users:    users,
		Hasher:   security.NewPasswordHasher(cfg.PBKDF2Iterations, nil),
		Tokens:   tokens,
		Throttle: auth.NewThrottle(attempts, cfg.Throttle, security.SystemClock{}),
		Refresh:  auth.NewRefreshStore(repository.NewTokenRepo(db), tokens, security.SystemClock{}, nil),
		Gate:     gate,
		Log:      log.Named("auth"),
		Audit:    auditor,
		Metrics:  auth.NewMetrics(reg),
	})

	e := router.NewEcho(cfg.TrustedProxies)
	e.Use(echomw.Recover(), echomw.RequestID())
	e.Use(middleware.NewHTTPMetrics(reg).Handler(), middleware.RequestLogger(log.Named("http")))

	router.RegisterRoutes(e, db, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.RegisterAuth(e, handler.NewAuthHandler(svc), gate,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log.Named("ratelimit")))

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	if pub != nil {
		pub.Close()
		select {
		case <-pubDone:
		case <-shutdownCtx.Done():
			log.Warn("audit publisher did not flush before shutdown deadline")
		}
		if n := pub.Dropped(); n > 0 {
			log.Warn("audit events dropped", zap.Int64("count", n))
		}
	}
}
