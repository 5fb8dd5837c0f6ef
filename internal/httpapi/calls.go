package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type manualCallRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
}

// ManualCall places a single operator call guarded by the destination lock table.
func (h Handlers) ManualCall(c *gin.Context) {
	if h.Calls == nil {
		notConfigured(c, "calls")
		return
	}
	var req manualCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "InvalidRequest", "invalid json")
		return
	}
	call, err := h.Calls.Dial(c.Request.Context(), req.To, req.From)
	if err != nil {
		fail(c, err)
		return
	}
	h.Audit.LogManualCall(c.Request.Context(), actor(c), call.SID, call.To, "call initiated")
	c.JSON(http.StatusOK, gin.H{"message": "Call initiated", "sid": call.SID, "from": call.From, "to": call.To})
}

func (h Handlers) TerminateCall(c *gin.Context) {
	if h.Calls == nil {
		notConfigured(c, "calls")
		return
	}
	sid := c.Param("sid")
	if err := h.Calls.Terminate(c.Request.Context(), sid); err != nil {
		fail(c, err)
		return
	}
	h.Audit.LogManualCall(c.Request.Context(), actor(c), sid, "", "call terminated")
	c.JSON(http.StatusOK, gin.H{"message": "Call terminated successfully."})
}

// ActiveCalls lists destinations currently locked by a call.
func (h Handlers) ActiveCalls(c *gin.Context) {
	if h.Calls == nil {
		notConfigured(c, "calls")
		return
	}
	locks, err := h.Calls.Active(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, locks)
}

func (h Handlers) AvailableNumbers(c *gin.Context) {
	if h.Gateway == nil {
		notConfigured(c, "telephony")
		return
	}
	numbers, err := h.Gateway.ListNumbers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, numbers)
}

func (h Handlers) CallLogs(c *gin.Context) {
	if h.Reporting == nil {
		notConfigured(c, "reporting")
		return
	}
	logs, err := h.Reporting.CallLogs(c.Request.Context(), c.Param("number"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// DashboardStats accepts fromDate and toDate as YYYY-MM-DD.
func (h Handlers) DashboardStats(c *gin.Context) {
	if h.Reporting == nil {
		notConfigured(c, "reporting")
		return
	}
	stats, err := h.Reporting.DashboardStats(c.Request.Context(), c.Query("fromDate"), c.Query("toDate"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
