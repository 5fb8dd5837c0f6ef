// Package ingress accepts provider call status webhooks and routes them to
// the dispatch engine, the lock table, the fan-out and the journal.
package ingress

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"power-dialer/internal/calls"
	"power-dialer/internal/fanout"
	"power-dialer/internal/telephony"
	"power-dialer/pkg/logger"
)

type Engine interface {
	OnProviderEvent(sid string, status calls.CallStatus) bool
}

type LockReleaser interface {
	ReleaseCall(ctx context.Context, callID string) (dest string, released bool, err error)
}

type Publisher interface {
	Publish(event string, data any)
}

type Auditor interface {
	LogCallOutcome(ctx context.Context, sid, destination, status string)
}

// Handler serves the status webhook. Every collaborator is optional.
type Handler struct {
	Engine    Engine
	Locks     LockReleaser
	Publisher Publisher
	Audit     Auditor
}

// Events always answers 200 so the provider never retries; malformed or
// unknown events are logged and dropped.
func (h Handler) Events(c *gin.Context) {
	log := logger.FromGin(c)
	cb, err := telephony.ParseStatusCallback(c.Request)
	if err != nil {
		log.Warn("status callback unreadable", "err", err)
		c.Status(http.StatusOK)
		return
	}
	status, ok := cb.Status()
	if !ok {
		log.Info("status callback ignored", "sid", cb.CallSid, "status", cb.RawStatus)
		c.Status(http.StatusOK)
		return
	}
	h.Handle(c.Request.Context(), log, cb, status)
	c.Status(http.StatusOK)
}

// Handle applies one well-formed status event.
func (h Handler) Handle(ctx context.Context, log *slog.Logger, cb telephony.StatusCallback, status calls.CallStatus) {
	matched := false
	if h.Engine != nil {
		matched = h.Engine.OnProviderEvent(cb.CallSid, status)
	}
	log.Debug("call status", "sid", cb.CallSid, "status", status, "bulk", matched)

	if status.IsTerminal() && h.Locks != nil {
		dest, released, err := h.Locks.ReleaseCall(ctx, cb.CallSid)
		switch {
		case err != nil:
			log.Warn("destination lock release failed", "sid", cb.CallSid, "err", err)
		case released:
			log.Debug("destination lock released", "sid", cb.CallSid, "destination", dest)
		}
	}

	if h.Publisher != nil {
		h.Publisher.Publish(fanout.EventCallStatus, fanout.CallStatus{
			SID:    cb.CallSid,
			From:   cb.From,
			To:     cb.To,
			Status: cb.RawStatus,
		})
	}

	if status.IsTerminal() && h.Audit != nil {
		h.Audit.LogCallOutcome(context.WithoutCancel(ctx), cb.CallSid, cb.To, string(status))
	}
}
