package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"power-dialer/internal/auth"
	"power-dialer/internal/fanout"
	"power-dialer/internal/httpapi"
	"power-dialer/internal/rbac"
	"power-dialer/internal/telephony"
	"power-dialer/pkg/utils"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, a *app) {
	// public
	r.GET("/", httpapi.Root)
	r.GET("/healthz", httpapi.Healthz(3*time.Second, healthChecks(a)...))

	authHandlers := auth.Handlers{Manager: a.authManager, Users: a.users}
	r.POST("/api/auth/login", authHandlers.Login)
	r.POST("/api/auth/refresh", authHandlers.Refresh)

	// Provider webhooks. Signatures are checked against PUBLIC_BASE_URL.
	webhooks := r.Group("/api/twilio")
	if a.cfg.Twilio.ValidateSignatures && a.cfg.Twilio.AuthToken != "" {
		webhooks.Use(telephony.RequireSignature(
			telephony.NewSignatureValidator(a.cfg.Twilio.AuthToken),
			a.cfg.App.PublicBaseURL,
			false,
		))
	}
	{
		twiml := telephony.TwiMLHandler{ConnectCallerID: a.cfg.Twilio.ConnectCallerID, Publisher: a.hub}
		webhooks.POST("/events", a.ingress.Events)
		for path, h := range map[string]gin.HandlerFunc{
			"/connect":    twiml.Connect,
			"/bridge":     twiml.Bridge,
			"/conference": twiml.Conference,
			"/voice":      twiml.Voice,
			"/incoming":   twiml.Incoming,
		} {
			webhooks.GET(path, h)
			webhooks.POST(path, h)
		}
	}

	h := httpapi.Handlers{
		Campaign:  a.engine,
		Calls:     a.calls,
		Gateway:   a.gateway,
		Reporting: a.reports,
		Messaging: a.messages,
		Audit:     a.audit,
		Publisher: a.hub,
	}

	msgStatus := r.Group("/api/messages")
	if a.cfg.Twilio.ValidateSignatures && a.cfg.Twilio.AuthToken != "" {
		msgStatus.Use(telephony.RequireSignature(
			telephony.NewSignatureValidator(a.cfg.Twilio.AuthToken),
			a.cfg.App.PublicBaseURL,
			false,
		))
	}
	msgStatus.POST("/status-callback", h.MessageStatus)

	// protected API group
	api := r.Group("/api")
	api.Use(auth.RequireAccessToken(a.authManager))
	api.Use(rbac.RequireAnyRole(rbac.RoleAgent))
	{
		api.GET("/auth/me", authHandlers.Me)

		tokens := telephony.TokenHandler{Tokens: a.tokens, Identity: identity}
		api.GET("/twilio/token", tokens.Issue)
		api.POST("/twilio/token", tokens.Issue)

		bulk := api.Group("/bulk-calls")
		{
			bulk.POST("/upload-excel", h.UploadNumbers)
			bulk.POST("/start", h.StartBulk)
			bulk.POST("/pause", h.PauseBulk)
			bulk.POST("/resume", h.ResumeBulk)
			bulk.POST("/stop", h.StopBulk)
			bulk.GET("/status", h.BulkStatus)
		}

		calls := api.Group("/calls")
		{
			calls.POST("/manual", h.ManualCall)
			calls.POST("/terminate/:sid", h.TerminateCall)
			calls.GET("/active", h.ActiveCalls)
		}

		api.GET("/numbers/available", h.AvailableNumbers)
		api.GET("/call-logs/all", h.CallLogs)
		api.GET("/call-logs/:number", h.CallLogs)
		api.GET("/dashboard/stats", h.DashboardStats)

		messages := api.Group("/messages")
		{
			messages.GET("/all", h.LatestMessages)
			messages.GET("/filter", h.FilterMessages)
			messages.GET("/conversation/:number", h.Conversation)
			messages.POST("/send", h.SendMessage)
		}

		// ADMIN routes
		api.GET("/audit/events", rbac.RequireAdmin(), h.AuditEvents)
	}

	// Browsers cannot set headers on websocket upgrades; the token rides in ?token=.
	ws := fanout.WSHandler{Hub: a.hub, AllowedOrigin: a.cfg.App.CORSOrigin}
	r.GET("/ws", auth.RequireAccessToken(a.authManager), ws.Serve)
}

func identity(c *gin.Context) string {
	uid, _ := auth.UserID(c.Request.Context())
	return uid
}

func healthChecks(a *app) []httpapi.HealthCheck {
	checks := []httpapi.HealthCheck{{Name: a.gateway.Name(), Check: a.gateway.HealthCheck}}
	if a.db != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "postgres", Check: func(ctx context.Context) error {
			return utils.HealthCheck(ctx, a.db, 2*time.Second)
		}})
	}
	if a.rdb != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return utils.PingRedis(ctx, a.rdb, 2*time.Second)
		}})
	}
	return checks
}
