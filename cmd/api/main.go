package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"power-dialer/internal/audit"
	"power-dialer/internal/auth"
	"power-dialer/internal/calls"
	"power-dialer/internal/campaign"
	"power-dialer/internal/config"
	"power-dialer/internal/fanout"
	"power-dialer/internal/ingress"
	"power-dialer/internal/messaging"
	"power-dialer/internal/rbac"
	"power-dialer/internal/reporting"
	"power-dialer/internal/telephony"
	"power-dialer/pkg/logger"
	"power-dialer/pkg/utils"
)

// app holds the wired process dependencies.
type app struct {
	cfg config.Config
	log *slog.Logger

	db  *sql.DB
	rdb *redis.Client

	authManager *auth.Manager
	users       *auth.Directory

	gateway   telephony.Gateway
	sandbox   *telephony.SandboxGateway
	callbacks telephony.Callbacks
	tokens    *telephony.VoiceTokens

	hub      *fanout.Hub
	locks    calls.LockTable
	engine   *campaign.Engine
	calls    *calls.Service
	reports  *reporting.Service
	messages *messaging.Service
	audit    *audit.Service
	ingress  ingress.Handler
}

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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := build(rootCtx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.close()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz", "/api/twilio/"))
	r.Use(cors(cfg.App.CORSOrigin))
	registerRoutes(r, a)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Bulk uploads and websocket writes manage their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "provider", a.gateway.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		// Stop dialing before the listener goes away so in-flight webhooks still land.
		a.engine.Close()
		a.hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("http server failed", "err", err)
	}
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	var err error
	a.authManager, err = auth.NewManager(cfg.Auth)
	if err != nil {
		return nil, err
	}
	a.users = auth.NewDirectory(
		auth.User{Email: cfg.Auth.AdminEmail, Password: cfg.Auth.AdminPassword, Role: rbac.RoleAdmin},
		auth.User{Email: cfg.Auth.AgentEmail, Password: cfg.Auth.AgentPassword, Role: rbac.RoleAgent},
	)

	repo := audit.Repository(audit.NewMemoryRepo())
	if cfg.DBEnabled() {
		a.db, err = utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, err
		}
		pg := audit.NewPostgresRepo(a.db)
		if err := pg.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, err
		}
		repo = pg
	} else {
		log.Warn("DB_HOST not set, audit journal kept in memory")
	}
	a.audit = audit.NewService(repo, logger.Component(log, "audit"))

	if cfg.RedisEnabled() {
		a.rdb, err = utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			a.close()
			return nil, err
		}
		a.locks = calls.NewRedisLocks(a.rdb, cfg.Locks.TTL)
	} else {
		a.locks = calls.NewMemoryLocks(cfg.Locks.TTL)
	}

	switch cfg.Twilio.Provider {
	case config.ProviderSandbox:
		a.sandbox = &telephony.SandboxGateway{
			Simulate: true,
			Log:      logger.Component(log, "sandbox"),
		}
		if cfg.Twilio.DefaultNumber != "" {
			a.sandbox.Numbers = []telephony.PhoneNumber{{SID: "PNsandbox", PhoneNumber: cfg.Twilio.DefaultNumber, FriendlyName: "Sandbox"}}
		}
		a.gateway = a.sandbox
	default:
		tw, err := telephony.NewTwilioGateway(telephony.TwilioConfig{
			AccountSID:     cfg.Twilio.AccountSID,
			AuthToken:      cfg.Twilio.AuthToken,
			APIKey:         cfg.Twilio.APIKey,
			APISecret:      cfg.Twilio.APISecret,
			CallsPerSecond: cfg.Twilio.CallsPerSecond,
			RequestTimeout: cfg.Bulk.DialTimeout,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		a.gateway = tw
	}

	a.tokens, err = telephony.NewVoiceTokens(telephony.VoiceTokenConfig{
		AccountSID:  cfg.Twilio.AccountSID,
		APIKey:      cfg.Twilio.APIKey,
		APISecret:   cfg.Twilio.APISecret,
		TwiMLAppSID: cfg.Twilio.TwiMLAppSID,
	})
	if errors.Is(err, telephony.ErrNotConfigured) {
		log.Warn("voice tokens disabled, browser calling unavailable")
	} else if err != nil {
		a.close()
		return nil, err
	}

	a.callbacks = telephony.NewCallbacks(cfg.App.PublicBaseURL)
	a.hub = fanout.NewHub(logger.Component(log, "fanout"))

	a.engine = campaign.NewEngine(campaign.NewStore(), a.gateway, a.callbacks, campaign.Options{
		AdvanceDelay:    cfg.Bulk.AdvanceDelay,
		RetryDelay:      cfg.Bulk.RetryDelay,
		AttemptTimeout:  cfg.Bulk.AttemptTimeout,
		DialTimeout:     cfg.Bulk.DialTimeout,
		DefaultCallerID: cfg.Twilio.DefaultNumber,
		Locks:           a.locks,
		Publisher:       a.hub,
		Logger:          logger.Component(log, "campaign"),
	})
	a.calls = calls.NewService(a.locks, a.gateway, a.callbacks, cfg.Twilio.DefaultNumber, logger.Component(log, "calls"))
	a.reports = reporting.NewService(a.gateway, time.Local)
	a.messages = messaging.NewService(a.gateway, cfg.Twilio.DefaultNumber, a.callbacks.MessageStatusURL())
	a.ingress = ingress.Handler{
		Engine:    a.engine,
		Locks:     a.locks,
		Publisher: a.hub,
		Audit:     a.audit,
	}
	return a, nil
}

func (a *app) close() {
	if a.sandbox != nil {
		a.sandbox.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// cors allows the operator UI origin. Credentials are bearer tokens, never cookies.
func cors(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+logger.HeaderRequestID)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
