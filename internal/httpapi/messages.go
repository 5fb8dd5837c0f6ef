package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"power-dialer/internal/fanout"
	"power-dialer/internal/messaging"
	"power-dialer/internal/telephony"
	"power-dialer/pkg/logger"
)

type sendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
	From string `json:"from"`
}

func (h Handlers) LatestMessages(c *gin.Context) {
	if h.Messaging == nil {
		notConfigured(c, "messaging")
		return
	}
	msgs, err := h.Messaging.Latest(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// FilterMessages takes ?status=replied|unreplied|all.
func (h Handlers) FilterMessages(c *gin.Context) {
	if h.Messaging == nil {
		notConfigured(c, "messaging")
		return
	}
	f, err := messaging.ParseFilter(c.Query("status"))
	if err != nil {
		fail(c, err)
		return
	}
	msgs, err := h.Messaging.Filter(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h Handlers) Conversation(c *gin.Context) {
	if h.Messaging == nil {
		notConfigured(c, "messaging")
		return
	}
	msgs, err := h.Messaging.Conversation(c.Request.Context(), c.Param("number"), c.Query("from"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h Handlers) SendMessage(c *gin.Context) {
	if h.Messaging == nil {
		notConfigured(c, "messaging")
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "InvalidRequest", "invalid json")
		return
	}
	m, err := h.Messaging.Send(c.Request.Context(), req.To, req.Body, req.From)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": m})
}

// MessageStatus is the delivery webhook. It always answers 200.
func (h Handlers) MessageStatus(c *gin.Context) {
	cb, err := telephony.ParseMessageStatusCallback(c.Request)
	if err != nil || cb.MessageSid == "" {
		logger.FromGin(c).Warn("message status callback ignored", "err", err)
		c.String(http.StatusOK, "Status received")
		return
	}
	logger.FromGin(c).Info("message status", "sid", cb.MessageSid, "status", cb.Status, "to", cb.To, "error_code", cb.ErrorCode)
	if h.Publisher != nil {
		h.Publisher.Publish(fanout.EventMessageStatus, cb)
	}
	c.String(http.StatusOK, "Status received")
}
